package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/common"
	"github.com/joseph-ayodele/podcheck/internal/entity"
)

// ErrNotFound is returned when the repository root does not exist.
var ErrNotFound = errors.New("input path not found")

// ListStats summarises one List call.
type ListStats struct {
	Scanned uint32
	Matched uint32
	Hidden  uint32
}

// Repository enumerates supported source documents under a directory, or a single file.
type Repository struct {
	root   string
	logger *slog.Logger
}

func NewRepository(root string, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{root: root, logger: logger}
}

// Root returns the configured root path.
func (r *Repository) Root() string { return r.root }

// List returns the absolute paths of supported files, sorted and de-duplicated.
// Directories are scanned one level deep; hidden files are skipped.
func (r *Repository) List(ctx context.Context) ([]string, ListStats, error) {
	var stats ListStats
	if strings.TrimSpace(r.root) == "" {
		return nil, stats, fmt.Errorf("repository root: %w", common.ErrInvalidInput)
	}

	info, err := os.Stat(r.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, stats, fmt.Errorf("%w: %s", ErrNotFound, r.root)
		}
		return nil, stats, fmt.Errorf("stat %s: %w", r.root, err)
	}

	if !info.IsDir() {
		stats.Scanned = 1
		if !Supported(r.root) {
			return []string{}, stats, nil
		}
		abs, err := filepath.Abs(r.root)
		if err != nil {
			return nil, stats, fmt.Errorf("abs path: %w", err)
		}
		stats.Matched = 1
		return []string{abs}, stats, nil
	}

	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, stats, fmt.Errorf("read dir %s: %w", r.root, err)
	}

	seen := make(map[string]struct{}, len(entries))
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		if e.IsDir() {
			continue
		}
		stats.Scanned++
		if IsHidden(e.Name()) {
			stats.Hidden++
			continue
		}
		if !constants.IsAllowedExt(filepath.Ext(e.Name())) {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(r.root, e.Name()))
		if err != nil {
			r.logger.Warn("ingest.list.abs_failed", "name", e.Name(), "err", err)
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		paths = append(paths, abs)
	}
	slices.Sort(paths)
	stats.Matched = uint32(len(paths))

	r.logger.Debug("ingest.list", "root", r.root, "scanned", stats.Scanned, "matched", stats.Matched, "hidden", stats.Hidden)
	return paths, stats, nil
}

// Read loads a file into a SourceDocument. PDFs get their page count filled in.
func (r *Repository) Read(ctx context.Context, path string) (entity.SourceDocument, error) {
	var doc entity.SourceDocument
	if err := ctx.Err(); err != nil {
		return doc, err
	}

	ext := constants.NormalizeExt(filepath.Ext(path))
	if !constants.IsAllowedExt(ext) {
		return doc, fmt.Errorf("unsupported extension %q: %w", ext, common.ErrInvalidInput)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	sum := sha256.Sum256(content)

	doc = entity.SourceDocument{
		Path:        path,
		Filename:    filepath.Base(path),
		MediaType:   constants.MediaTypeForExt(ext),
		Format:      constants.MapExtToFormat(ext),
		Content:     content,
		Size:        len(content),
		ContentHash: hex.EncodeToString(sum[:]),
	}

	if doc.Format == constants.PDF {
		pages, err := PDFPageCount(content)
		if err != nil {
			// providers still get the bytes; they report their own errors
			r.logger.Warn("ingest.read.page_count_failed", "file", doc.Filename, "err", err)
		} else {
			doc.Pages = pages
		}
	}
	return doc, nil
}

// PDFPageCount returns the number of pages in a PDF held in memory.
func PDFPageCount(content []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(content), conf)
	if err != nil {
		return 0, fmt.Errorf("pdf page count: %w", err)
	}
	return n, nil
}

// Supported reports whether path has a supported extension and is not hidden.
func Supported(path string) bool {
	return !IsHidden(path) && constants.IsAllowedExt(filepath.Ext(path))
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}

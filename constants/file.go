package constants

import (
	"mime"
	"strings"
)

// File formats a source document can have.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

// AllowedExtensions holds the file extensions the repository accepts (lowercase, no dot).
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
	"webp": {},
	"tiff": {},
	"bmp":  {},
}

var mediaTypes = map[string]string{
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"tiff": "image/tiff",
	"bmp":  "image/bmp",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether ext (with or without dot) is a supported source extension.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// MapExtToFormat returns PDF or IMAGE for supported extensions, "" otherwise.
func MapExtToFormat(ext string) string {
	ext = NormalizeExt(ext)
	if !IsAllowedExt(ext) {
		return ""
	}
	if ext == "pdf" {
		return PDF
	}
	return IMAGE
}

// MediaTypeForExt infers a MIME type, defaulting to application/octet-stream.
func MediaTypeForExt(ext string) string {
	ext = NormalizeExt(ext)
	if mt, ok := mediaTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension("." + ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// MaxVisionMBDefault caps the size of a document sent inline to a vision model.
const MaxVisionMBDefault = 20

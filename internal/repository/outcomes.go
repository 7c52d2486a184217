package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/pipeline"
)

// OutcomeRow is one persisted document result.
type OutcomeRow struct {
	ID             uuid.UUID
	RunID          uuid.UUID
	SourcePath     string
	Filename       string
	ContentHash    string
	Status         constants.ResultStatus
	Mode           string
	EngineUsed     string
	EngineChain    []string
	Decision       string
	DecisionScore  *float64
	QualityMin     *float64
	SkipReason     string
	Error          string
	ValidationJSON []byte
	CreatedAt      time.Time
}

type OutcomeRepository interface {
	Save(ctx context.Context, runID uuid.UUID, res pipeline.Result) (OutcomeRow, error)
	ListByRun(ctx context.Context, runID uuid.UUID) ([]OutcomeRow, error)
	Close()
}

const outcomesSchema = `CREATE TABLE IF NOT EXISTS document_outcomes (
	id              TEXT PRIMARY KEY,
	run_id          TEXT NOT NULL,
	source_path     TEXT NOT NULL,
	filename        TEXT NOT NULL,
	content_hash    TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	mode            TEXT NOT NULL DEFAULT '',
	engine_used     TEXT NOT NULL DEFAULT '',
	engine_chain    TEXT NOT NULL DEFAULT '',
	decision        TEXT NOT NULL DEFAULT '',
	decision_score  DOUBLE PRECISION,
	quality_min     DOUBLE PRECISION,
	skip_reason     TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	validation_json TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
)`

const outcomesRunIndex = `CREATE INDEX IF NOT EXISTS document_outcomes_run_idx ON document_outcomes (run_id)`

// createdAtLayout sorts lexicographically in time order.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

type outcomeRepo struct {
	db     *DB
	logger *slog.Logger
}

// NewOutcomeRepository creates the schema if needed and returns the store.
func NewOutcomeRepository(ctx context.Context, db *DB, logger *slog.Logger) (OutcomeRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, stmt := range []string{outcomesSchema, outcomesRunIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.Error("failed to create outcome schema", "error", err)
			return nil, fmt.Errorf("create outcome schema: %w", err)
		}
	}
	return &outcomeRepo{db: db, logger: logger}, nil
}

func (r *outcomeRepo) Save(ctx context.Context, runID uuid.UUID, res pipeline.Result) (OutcomeRow, error) {
	row := OutcomeRow{
		ID:          uuid.New(),
		RunID:       runID,
		SourcePath:  res.Source,
		Filename:    res.Filename(),
		ContentHash: res.Doc.ContentHash,
		Status:      res.Status(),
		SkipReason:  res.SkipReason,
		CreatedAt:   time.Now().UTC(),
	}
	if res.Err != nil {
		row.Error = res.Err.Error()
	}
	if o := res.Outcome; o != nil {
		row.Mode = o.Mode
		row.EngineUsed = o.EngineUsed
		row.EngineChain = o.Chain()
	}
	if v := res.Validation; v != nil {
		row.Decision = string(v.Decision)
		score := v.DecisionScore
		row.DecisionScore = &score
		if v.Quality.ScoreMin != nil {
			q := *v.Quality.ScoreMin
			row.QualityMin = &q
		}
		b, err := json.Marshal(v)
		if err != nil {
			return OutcomeRow{}, fmt.Errorf("encode validation: %w", err)
		}
		row.ValidationJSON = b
	}

	q := r.rebind(`INSERT INTO document_outcomes (
		id, run_id, source_path, filename, content_hash, status, mode, engine_used,
		engine_chain, decision, decision_score, quality_min, skip_reason, error,
		validation_json, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q,
		row.ID.String(), row.RunID.String(), row.SourcePath, row.Filename, row.ContentHash,
		string(row.Status), row.Mode, row.EngineUsed, strings.Join(row.EngineChain, ","),
		row.Decision, nullFloat(row.DecisionScore), nullFloat(row.QualityMin),
		row.SkipReason, row.Error, string(row.ValidationJSON),
		row.CreatedAt.Format(createdAtLayout),
	)
	if err != nil {
		r.logger.Error("failed to save outcome", "run_id", runID, "file", row.Filename, "error", err)
		return OutcomeRow{}, fmt.Errorf("insert outcome: %w", err)
	}
	r.logger.Debug("repository.outcome.saved", "run_id", runID, "file", row.Filename, "status", row.Status)
	return row, nil
}

func (r *outcomeRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]OutcomeRow, error) {
	q := r.rebind(`SELECT
		id, run_id, source_path, filename, content_hash, status, mode, engine_used,
		engine_chain, decision, decision_score, quality_min, skip_reason, error,
		validation_json, created_at
	FROM document_outcomes WHERE run_id = ? ORDER BY created_at, filename`)
	rows, err := r.db.QueryContext(ctx, q, runID.String())
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []OutcomeRow
	for rows.Next() {
		var (
			row               OutcomeRow
			id, run, status   string
			chain, validation string
			created           string
			score, qualityMin sql.NullFloat64
		)
		if err := rows.Scan(
			&id, &run, &row.SourcePath, &row.Filename, &row.ContentHash, &status, &row.Mode, &row.EngineUsed,
			&chain, &row.Decision, &score, &qualityMin, &row.SkipReason, &row.Error,
			&validation, &created,
		); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if row.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse outcome id: %w", err)
		}
		if row.RunID, err = uuid.Parse(run); err != nil {
			return nil, fmt.Errorf("parse run id: %w", err)
		}
		if row.CreatedAt, err = time.Parse(createdAtLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		row.Status = constants.ResultStatus(status)
		if chain != "" {
			row.EngineChain = strings.Split(chain, ",")
		}
		if validation != "" {
			row.ValidationJSON = []byte(validation)
		}
		if score.Valid {
			row.DecisionScore = &score.Float64
		}
		if qualityMin.Valid {
			row.QualityMin = &qualityMin.Float64
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return out, nil
}

func (r *outcomeRepo) Close() {
	r.db.Close(r.logger)
}

// rebind turns ? placeholders into $n for Postgres.
func (r *outcomeRepo) rebind(q string) string {
	if r.db.Dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

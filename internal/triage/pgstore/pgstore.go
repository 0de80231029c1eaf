// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/aegis/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/aegis/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists analysis results in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on the given pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const columns = `id, alert_id, severity, category, confidence, summary, analysis,
	is_true_positive, recommendations, mitre_context, kb_references,
	ml_applied, ml_prediction, ml_confidence, ml_synthetic, rag_applied,
	degraded, model_used, created_at, processed_at, duration_s`

// Get retrieves an analysis result by ID.
//
//nolint:dupl // similar structure to GetByAlertID is intentional
func (s *Store) Get(ctx context.Context, id string) (*triage.Result, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + columns + ` FROM analyses WHERE id = $1`
	r, err := scanResultRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

// GetByAlertID retrieves the most recent analysis result for an alert.
//
//nolint:dupl // similar structure to Get is intentional
func (s *Store) GetByAlertID(ctx context.Context, alertID string) (*triage.Result, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetByAlertID", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + columns + ` FROM analyses WHERE alert_id = $1 ORDER BY created_at DESC LIMIT 1`
	r, err := scanResultRow(s.pool.QueryRow(ctx, query, alertID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

// Put upserts an analysis result.
func (s *Store) Put(ctx context.Context, r *triage.Result) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	recs, err := json.Marshal(r.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}

	query := `INSERT INTO analyses (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (id) DO UPDATE SET
			severity = EXCLUDED.severity,
			category = EXCLUDED.category,
			confidence = EXCLUDED.confidence,
			summary = EXCLUDED.summary,
			analysis = EXCLUDED.analysis,
			is_true_positive = EXCLUDED.is_true_positive,
			recommendations = EXCLUDED.recommendations,
			mitre_context = EXCLUDED.mitre_context,
			kb_references = EXCLUDED.kb_references,
			ml_applied = EXCLUDED.ml_applied,
			ml_prediction = EXCLUDED.ml_prediction,
			ml_confidence = EXCLUDED.ml_confidence,
			ml_synthetic = EXCLUDED.ml_synthetic,
			rag_applied = EXCLUDED.rag_applied,
			degraded = EXCLUDED.degraded,
			model_used = EXCLUDED.model_used,
			processed_at = EXCLUDED.processed_at,
			duration_s = EXCLUDED.duration_s`

	_, err = s.pool.Exec(ctx, query,
		r.ID, r.AlertID, string(r.Severity), string(r.Category), r.Confidence,
		r.Summary, r.Analysis, r.IsTruePositive, recs, r.MitreContext,
		r.KBReferences, r.MLVerdictApplied, r.MLPrediction, r.MLConfidence,
		r.MLSynthetic, r.RAGApplied, r.Degraded, r.ModelUsed,
		r.CreatedAt, r.ProcessedAt, r.Duration,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// scanResultRow scans one analyses row. Returns (nil, nil) when no row
// matched.
func scanResultRow(row pgx.Row) (*triage.Result, error) {
	var r triage.Result
	var severity, category string
	var recs []byte

	err := row.Scan(
		&r.ID, &r.AlertID, &severity, &category, &r.Confidence,
		&r.Summary, &r.Analysis, &r.IsTruePositive, &recs, &r.MitreContext,
		&r.KBReferences, &r.MLVerdictApplied, &r.MLPrediction, &r.MLConfidence,
		&r.MLSynthetic, &r.RAGApplied, &r.Degraded, &r.ModelUsed,
		&r.CreatedAt, &r.ProcessedAt, &r.Duration,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan analysis row: %w", err)
	}

	r.Severity = triage.Severity(severity)
	r.Category = triage.Category(category)
	if len(recs) > 0 {
		if err := json.Unmarshal(recs, &r.Recommendations); err != nil {
			return nil, fmt.Errorf("unmarshal recommendations: %w", err)
		}
	}
	return &r, nil
}

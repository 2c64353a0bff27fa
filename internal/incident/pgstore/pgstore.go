// Package pgstore provides a PostgreSQL implementation of incident.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/waypoint/internal/incident"
	"github.com/linnemanlabs/waypoint/internal/postgres"
)

var tracer = otel.Tracer("github.com/linnemanlabs/waypoint/internal/incident/pgstore")

//go:embed schema.sql
var schema string

// Store persists incidents in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	ctx = postgres.WithOperation(ctx, "pgstore.New")
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const incidentColumns = `id, name, description, incident_type, responsible_party,
	impact_description, supporting_evidence, entry_count, created_at`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
	return postgres.WithOperation(ctx, name), span
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Create inserts the incident row and its entries in one transaction.
func (s *Store) Create(ctx context.Context, inc *incident.Incident, entries []incident.Entry) error {
	ctx, span := startSpan(ctx, "pgstore.Create", "INSERT")
	defer span.End()
	span.SetAttributes(attribute.Int("incident.entries", len(entries)))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	_, err = tx.Exec(ctx, `INSERT INTO incidents (`+incidentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inc.ID, inc.Name, inc.Description, inc.IncidentType, inc.ResponsibleParty,
		inc.ImpactDescription, inc.SupportingEvidence, len(entries), inc.CreatedAt,
	)
	if err != nil {
		return fail(span, fmt.Errorf("insert incident: %w", err))
	}

	batch := &pgx.Batch{}
	for i, e := range entries {
		batch.Queue(`INSERT INTO incident_entries (incident_id, seq, source_table, source_id, notes)
			VALUES ($1, $2, $3, $4, $5)`, inc.ID, i, e.SourceTable, e.SourceID, e.Notes)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fail(span, fmt.Errorf("insert entries: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Get retrieves an incident and its entries in insertion order.
func (s *Store) Get(ctx context.Context, id string) (*incident.Detail, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	inc, err := scanIncident(s.pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail(span, fmt.Errorf("select incident: %w", err))
	}

	rows, err := s.pool.Query(ctx, `SELECT source_table, source_id, notes
		FROM incident_entries WHERE incident_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, false, fail(span, fmt.Errorf("select entries: %w", err))
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (incident.Entry, error) {
		var e incident.Entry
		err := row.Scan(&e.SourceTable, &e.SourceID, &e.Notes)
		return e, err
	})
	if err != nil {
		return nil, false, fail(span, fmt.Errorf("scan entries: %w", err))
	}

	return &incident.Detail{
		Incident: *inc,
		Data:     incident.Summarize(entries),
		Entries:  entries,
	}, true, nil
}

// List returns a page of incidents newest first and the total count.
func (s *Store) List(ctx context.Context, limit, offset int) ([]incident.Incident, int, error) {
	ctx, span := startSpan(ctx, "pgstore.List", "SELECT")
	defer span.End()

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM incidents`).Scan(&total); err != nil {
		return nil, 0, fail(span, fmt.Errorf("count incidents: %w", err))
	}

	rows, err := s.pool.Query(ctx, `SELECT `+incidentColumns+` FROM incidents
		ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fail(span, fmt.Errorf("select incidents: %w", err))
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (incident.Incident, error) {
		inc, err := scanIncident(row)
		if err != nil {
			return incident.Incident{}, err
		}
		return *inc, nil
	})
	if err != nil {
		return nil, 0, fail(span, fmt.Errorf("scan incidents: %w", err))
	}
	return items, total, nil
}

func scanIncident(row pgx.Row) (*incident.Incident, error) {
	var inc incident.Incident
	err := row.Scan(
		&inc.ID, &inc.Name, &inc.Description, &inc.IncidentType, &inc.ResponsibleParty,
		&inc.ImpactDescription, &inc.SupportingEvidence, &inc.EntryCount, &inc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	inc.CreatedAt = inc.CreatedAt.UTC()
	return &inc, nil
}

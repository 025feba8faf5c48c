// Package db persists the live job document. The document is stored as
// a single JSON row so a restart resumes with exactly the state the
// orchestrator last wrote.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cartpilot/job"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("job/db")

var ErrNoJob = errors.New("no job in progress")

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context) (*job.Job, error) {
	ctx, span := tracer.Start(ctx, "Get")
	defer span.End()

	var document string
	err := s.db.QueryRowContext(ctx,
		"select document from current_job where id = 0",
	).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJob
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var j job.Job
	err = json.Unmarshal([]byte(document), &j)
	if err != nil {
		err = fmt.Errorf("failed to decode job document: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &j, nil
}

func (s *Store) Put(ctx context.Context, j *job.Job) error {
	ctx, span := tracer.Start(ctx, "Put")
	defer span.End()

	document, err := json.Marshal(j)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	_, err = s.db.ExecContext(ctx, `
insert into current_job (id, document, updated_at) values (0, ?, ?)
on conflict (id) do update set document = excluded.document, updated_at = excluded.updated_at
`, string(document), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Clear")
	defer span.End()

	_, err := s.db.ExecContext(ctx, "delete from current_job where id = 0")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

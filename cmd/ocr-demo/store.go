package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS ocr_jobs (
	id UUID PRIMARY KEY,
	created_by TEXT NOT NULL DEFAULT '',
	document_uri TEXT NOT NULL,
	output_prefix TEXT NOT NULL,
	operation_name TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	min_page INT,
	max_page INT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	statusRunning   = "running"
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
)

var errJobNotFound = errors.New("OCR job not found")

type ocrJob struct {
	ID            string    `json:"id"`
	CreatedBy     string    `json:"created_by,omitempty"`
	DocumentURI   string    `json:"document_uri"`
	OutputPrefix  string    `json:"output_prefix"`
	OperationName string    `json:"operation_name"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	MinPage       *int      `json:"min_page,omitempty"`
	MaxPage       *int      `json:"max_page,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type jobStore struct {
	pool *pgxpool.Pool
}

func newJobStore(pool *pgxpool.Pool) *jobStore {
	return &jobStore{pool: pool}
}

func (s *jobStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create ocr_jobs table: %w", err)
	}
	return nil
}

func (s *jobStore) ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *jobStore) create(ctx context.Context, createdBy, documentURI, outputPrefix, operationName string) (*ocrJob, error) {
	job := &ocrJob{
		ID:            uuid.NewString(),
		CreatedBy:     createdBy,
		DocumentURI:   documentURI,
		OutputPrefix:  outputPrefix,
		OperationName: operationName,
		Status:        statusRunning,
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO ocr_jobs (id, created_by, document_uri, output_prefix, operation_name, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		job.ID, job.CreatedBy, job.DocumentURI, job.OutputPrefix, job.OperationName, job.Status)
	if err := row.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert OCR job: %w", err)
	}
	return job, nil
}

const jobColumns = `id, created_by, document_uri, output_prefix, operation_name, status, error, min_page, max_page, created_at, updated_at`

func (s *jobStore) get(ctx context.Context, id string) (*ocrJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errJobNotFound
	}

	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM ocr_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load OCR job %s: %w", id, err)
	}
	return job, nil
}

func (s *jobStore) list(ctx context.Context) ([]*ocrJob, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM ocr_jobs ORDER BY created_at DESC LIMIT 100`)
	if err != nil {
		return nil, fmt.Errorf("failed to list OCR jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*ocrJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan OCR job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *jobStore) markSucceeded(ctx context.Context, id string, minPage, maxPage int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ocr_jobs SET status = $2, min_page = $3, max_page = $4, updated_at = now()
		WHERE id = $1`,
		id, statusSucceeded, minPage, maxPage)
	if err != nil {
		return fmt.Errorf("failed to update OCR job %s: %w", id, err)
	}
	return nil
}

func (s *jobStore) markFailed(ctx context.Context, id, cause string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ocr_jobs SET status = $2, error = $3, updated_at = now()
		WHERE id = $1`,
		id, statusFailed, cause)
	if err != nil {
		return fmt.Errorf("failed to update OCR job %s: %w", id, err)
	}
	return nil
}

func scanJob(row pgx.Row) (*ocrJob, error) {
	job := &ocrJob{}
	err := row.Scan(&job.ID, &job.CreatedBy, &job.DocumentURI, &job.OutputPrefix, &job.OperationName,
		&job.Status, &job.Error, &job.MinPage, &job.MaxPage, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return job, nil
}

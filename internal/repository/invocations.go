package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/streamgate/streamgate/internal/model"
)

// InvocationsRepository is the ClickHouse-backed invocation log.
type InvocationsRepository interface {
	Insert(ctx context.Context, rec model.InvocationRecord) error
	List(ctx context.Context, binding string, status model.InvocationStatus, limit, offset int) ([]model.InvocationRecord, error)
}

type invocationsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewInvocationsRepository(ch *sqlx.DB) InvocationsRepository {
	return &invocationsRepository{ch: ch}
}

func (r *invocationsRepository) Insert(ctx context.Context, rec model.InvocationRecord) error {
	const q = `
		INSERT INTO streamgate.invocations
		    (id, binding, stream, partition_id, first_offset, last_offset, event_count, status, duration_ms, created_at)
		VALUES
		    (?,  ?,       ?,      ?,            ?,            ?,           ?,           ?,      ?,           ?)
	`
	_, err := r.ch.ExecContext(ctx, q,
		rec.ID, rec.Binding, rec.Stream, rec.Partition,
		rec.FirstOffset, rec.LastOffset, rec.EventCount,
		rec.Status.String(), rec.DurationMs, rec.CreatedAt,
	)
	return err
}

func (r *invocationsRepository) List(ctx context.Context, binding string, status model.InvocationStatus, limit, offset int) ([]model.InvocationRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, binding, stream, partition_id, first_offset, last_offset, event_count, status, duration_ms, created_at
		FROM streamgate.invocations
		WHERE 1 = 1
	`
	var args []any

	if binding != "" {
		q += " AND binding = ?"
		args = append(args, binding)
	}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.InvocationRecord
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

package silver

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvyn/setgraph/internal/observe"
	"github.com/corvyn/setgraph/internal/queue"
)

// QueueStore is the pgx-backed implementation of queue.Store, durable
// against the task_queue/dead_letter_tasks tables.
type QueueStore struct {
	pool *pgxpool.Pool
}

// NewQueueStore builds a QueueStore over pool.
func NewQueueStore(pool *pgxpool.Pool) *QueueStore {
	return &QueueStore{pool: pool}
}

func (q *QueueStore) Enqueue(ctx context.Context, t queue.Task) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := q.pool.Exec(ctx, `
		INSERT INTO task_queue (task_id, kind, track_id, source, priority, created_at, not_before, attempt, claimed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false)`,
		t.ID, t.Kind, t.TrackID, t.Source, t.Priority, t.CreatedAt, t.NotBefore, t.Attempt)
	return err
}

// Claim runs SELECT ... FOR UPDATE SKIP LOCKED inside a transaction so
// concurrent dispatcher workers never race for the same row, then
// flips claimed to true before committing.
func (q *QueueStore) Claim(ctx context.Context, now time.Time) (queue.Task, bool, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return queue.Task{}, false, err
	}
	defer tx.Rollback(ctx)

	var t queue.Task
	err = tx.QueryRow(ctx, `
		SELECT task_id, kind, track_id, source, priority, created_at, not_before, attempt
		FROM task_queue
		WHERE NOT claimed AND not_before <= $1
		ORDER BY priority DESC, created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, now,
	).Scan(&t.ID, &t.Kind, &t.TrackID, &t.Source, &t.Priority, &t.CreatedAt, &t.NotBefore, &t.Attempt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return queue.Task{}, false, nil
		}
		return queue.Task{}, false, err
	}

	if _, err := tx.Exec(ctx, "UPDATE task_queue SET claimed = true WHERE task_id = $1", t.ID); err != nil {
		return queue.Task{}, false, err
	}
	return t, true, tx.Commit(ctx)
}

func (q *QueueStore) MarkDone(ctx context.Context, taskID uuid.UUID) error {
	_, err := q.pool.Exec(ctx, "DELETE FROM task_queue WHERE task_id = $1", taskID)
	return err
}

func (q *QueueStore) MarkRetry(ctx context.Context, taskID uuid.UUID, notBefore time.Time, attempt int, lastErr string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE task_queue SET claimed = false, not_before = $2, attempt = $3 WHERE task_id = $1`,
		taskID, notBefore, attempt)
	_ = lastErr // retry reason isn't persisted on the live row; only dead-lettered tasks keep one
	return err
}

func (q *QueueStore) MarkDeadLetter(ctx context.Context, taskID uuid.UUID, lastErr string) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var t queue.Task
	err = tx.QueryRow(ctx, `
		SELECT task_id, kind, track_id, source, attempt FROM task_queue WHERE task_id = $1`, taskID,
	).Scan(&t.ID, &t.Kind, &t.TrackID, &t.Source, &t.Attempt)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO dead_letter_tasks (task_id, kind, track_id, source, last_error, attempt, dead_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		t.ID, t.Kind, t.TrackID, t.Source, lastErr, t.Attempt); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM task_queue WHERE task_id = $1", taskID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RunStore is the pgx-backed implementation of observe.RunStore,
// durable against the scraping_runs table.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore builds a RunStore over pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

func (r *RunStore) SaveRuns(ctx context.Context, runs []observe.Run) error {
	for _, run := range runs {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO scraping_runs (run_id, source, started_at, finished_at, status,
				playlists_found, tracks_added, artists_added, errors_count)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (run_id) DO UPDATE SET
				finished_at = EXCLUDED.finished_at, status = EXCLUDED.status,
				playlists_found = EXCLUDED.playlists_found, tracks_added = EXCLUDED.tracks_added,
				artists_added = EXCLUDED.artists_added, errors_count = EXCLUDED.errors_count`,
			run.RunID, run.Source, run.StartedAt, run.FinishedAt, run.Status,
			run.PlaylistsFound, run.TracksAdded, run.ArtistsAdded, run.ErrorsCount)
		if err != nil {
			return err
		}
	}
	return nil
}

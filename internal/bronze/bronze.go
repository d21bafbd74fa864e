// Package bronze implements C7, the bronze store: append-only
// persistence of raw scrape records keyed by (source, scrape_type,
// natural_key), per spec.md §4.7.
//
// Storage is grounded on the teacher's general pgx-free style
// adapted to the new stack: the teacher has no relational database at
// all (it's Datastore-backed), so the pgx/v5 usage here is built fresh
// from the library's own idioms (pgxpool.Pool, pgx.CollectRows /
// RowToStructByNameLax against the model package's `db:"..."` tags).
// Oversized-payload overflow archival to Cloud Storage is grounded on
// server/cover/cover.go's lazily-initialized, process-wide
// *storage.Client (sync.Once) and server/storage/reader.go's
// bucket/object-handle usage, repurposed from serving album art to
// archiving oversized raw scrape payloads with a pointer URI kept in
// the bronze row.
package bronze

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvyn/setgraph/internal/model"
)

// MaxInlinePayload is the raw_data size above which a payload is
// archived to Cloud Storage instead of stored inline; the bronze row
// keeps only a pointer (archive_uri).
const MaxInlinePayload = 1 << 20 // 1 MiB

// Archiver persists oversized payloads out of band and returns a URI
// the bronze row can reference.
type Archiver interface {
	Archive(ctx context.Context, key string, data []byte) (uri string, err error)
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// CloudStorageArchiver archives oversized payloads to a Cloud Storage
// bucket. A single client is created lazily and reused across calls,
// mirroring server/cover/cover.go's client/clientOnce pattern.
type CloudStorageArchiver struct {
	bucket string

	once   sync.Once
	client *storage.Client
	initErr error
}

// NewCloudStorageArchiver returns an Archiver backed by bucket. The
// underlying client is created on first use.
func NewCloudStorageArchiver(bucket string) *CloudStorageArchiver {
	return &CloudStorageArchiver{bucket: bucket}
}

func (a *CloudStorageArchiver) ensureClient(ctx context.Context) (*storage.Client, error) {
	a.once.Do(func() {
		a.client, a.initErr = storage.NewClient(ctx)
	})
	return a.client, a.initErr
}

// Archive writes data to the bucket under key and returns a
// "gs://bucket/key" URI.
func (a *CloudStorageArchiver) Archive(ctx context.Context, key string, data []byte) (string, error) {
	client, err := a.ensureClient(ctx)
	if err != nil {
		return "", fmt.Errorf("bronze: cloud storage client: %w", err)
	}
	w := client.Bucket(a.bucket).Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("bronze: archive write %s/%s: %w", a.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("bronze: archive close %s/%s: %w", a.bucket, key, err)
	}
	return "gs://" + a.bucket + "/" + key, nil
}

// Fetch reads back a previously archived payload by its gs:// URI's
// object key (the bucket is implied by the archiver's configuration).
func (a *CloudStorageArchiver) Fetch(ctx context.Context, uri string) ([]byte, error) {
	client, err := a.ensureClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("bronze: cloud storage client: %w", err)
	}
	key, err := objectKeyFromURI(a.bucket, uri)
	if err != nil {
		return nil, err
	}
	r, err := client.Bucket(a.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("bronze: archive read %s: %w", uri, err)
	}
	defer r.Close()
	buf := make([]byte, 0, r.Attrs.Size)
	tmp := make([]byte, 32*1024)
	for {
		n, err := r.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}
	return buf, nil
}

func objectKeyFromURI(bucket, uri string) (string, error) {
	prefix := "gs://" + bucket + "/"
	if len(uri) <= len(prefix) || uri[:len(prefix)] != prefix {
		return "", fmt.Errorf("bronze: archive uri %q not in bucket %q", uri, bucket)
	}
	return uri[len(prefix):], nil
}

// Store is the append-only bronze persistence layer.
type Store struct {
	pool     *pgxpool.Pool
	archiver Archiver // may be nil: inline-only storage
}

// New builds a Store over pool. archiver may be nil to disable
// overflow archival (every payload is stored inline regardless of
// size).
func New(pool *pgxpool.Pool, archiver Archiver) *Store {
	return &Store{pool: pool, archiver: archiver}
}

// Insert appends a raw scrape record, archiving its payload to Cloud
// Storage first if it exceeds MaxInlinePayload. Writes are idempotent
// on the natural key: a row already present for
// (source, scrape_type, natural_key) is left untouched and Insert
// reports ok=false without error.
func (s *Store) Insert(ctx context.Context, rec model.RawScrape) (ok bool, err error) {
	rawData := rec.RawData
	archiveURI := rec.ArchiveURI
	if s.archiver != nil && len(rawData) > MaxInlinePayload {
		key := fmt.Sprintf("%s/%s/%s", rec.Source, rec.ScrapeType, rec.ScrapeID)
		if archiveURI, err = s.archiver.Archive(ctx, key, rawData); err != nil {
			return false, fmt.Errorf("bronze: archiving oversized payload: %w", err)
		}
		rawData = nil
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO raw_scrapes
			(scrape_id, source, scrape_type, natural_key, raw_data, archive_uri, scraped_at, processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)
		ON CONFLICT (source, scrape_type, natural_key) DO NOTHING
	`, rec.ScrapeID, rec.Source, rec.ScrapeType, rec.NaturalKey, rawData, archiveURI, rec.ScrapedAt)
	if err != nil {
		return false, fmt.Errorf("bronze: insert %s/%s/%s: %w", rec.Source, rec.ScrapeType, rec.NaturalKey, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Unprocessed returns up to limit unprocessed bronze rows ordered by
// scraped_at ascending, per spec.md §4.7's read contract. limit <= 0
// means no limit.
func (s *Store) Unprocessed(ctx context.Context, limit int) ([]model.RawScrape, error) {
	query := `
		SELECT scrape_id, source, scrape_type, natural_key, raw_data, archive_uri,
		       scraped_at, processed, processed_at
		FROM raw_scrapes
		WHERE processed = false
		ORDER BY scraped_at ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bronze: querying unprocessed: %w", err)
	}
	defer rows.Close()
	return pgx.CollectRows(rows, pgx.RowToStructByNameLax[model.RawScrape])
}

// MarkProcessed flags scrapeID as processed within tx, so the caller
// can commit it atomically alongside the silver rows it produced, per
// spec.md §4.7 ("Marking processed is atomic with silver inserts in
// the same transaction unit").
func MarkProcessed(ctx context.Context, tx pgx.Tx, scrapeID uuid.UUID, at time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE raw_scrapes SET processed = true, processed_at = $2 WHERE scrape_id = $1`, scrapeID, at)
	if err != nil {
		return fmt.Errorf("bronze: marking %s processed: %w", scrapeID, err)
	}
	return nil
}

// Payload returns the full raw payload for rec, transparently
// fetching from the archiver if the row's data was overflowed out of
// the database.
func (s *Store) Payload(ctx context.Context, rec model.RawScrape) ([]byte, error) {
	if rec.ArchiveURI == "" {
		return rec.RawData, nil
	}
	if s.archiver == nil {
		return nil, fmt.Errorf("bronze: record %s has archive_uri %q but no archiver is configured", rec.ScrapeID, rec.ArchiveURI)
	}
	return s.archiver.Fetch(ctx, rec.ArchiveURI)
}

// BeginTx starts a transaction on the underlying pool, for callers
// (the transformer) that need to pair MarkProcessed with silver
// writes atomically.
func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

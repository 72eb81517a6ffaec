// Package sqlite stores media processing records in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/mediaq/media"
)

var _ media.Repository = (*Repository)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS transcriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	text TEXT NOT NULL,
	timestamps TEXT NOT NULL,
	embedding BLOB,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_filename ON transcriptions(filename);

CREATE TABLE IF NOT EXISTS videos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	detected_objects TEXT NOT NULL,
	summary TEXT NOT NULL,
	embedding BLOB,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_videos_filename ON videos(filename);
`

// Repository implements media.Repository on database/sql.
type Repository struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	r, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// New wraps an existing database handle and applies the schema.
func New(db *sql.DB) (*Repository, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	for _, table := range []string{"transcriptions", "videos"} {
		if err := addEmbeddingColumn(db, table); err != nil {
			return nil, fmt.Errorf("migrate %s: %w", table, err)
		}
	}
	return &Repository{db: db}, nil
}

// addEmbeddingColumn upgrades tables created before embeddings were stored.
func addEmbeddingColumn(db *sql.DB, table string) error {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = 'embedding'`, table).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	_, err = db.Exec(`ALTER TABLE ` + table + ` ADD COLUMN embedding BLOB`)
	return err
}

// encodeEmbedding stores a nil vector as NULL.
func encodeEmbedding(vec []float32) (any, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	data, err := msgpack.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}
	return data, nil
}

func decodeEmbedding(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var vec []float32
	if err := msgpack.Unmarshal(data, &vec); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return vec, nil
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// Close closes the database.
func (r *Repository) Close() error { return r.db.Close() }

// SaveTranscription inserts t.
func (r *Repository) SaveTranscription(ctx context.Context, t *media.Transcription) error {
	segments, err := json.Marshal(t.Segments)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	embedding, err := encodeEmbedding(t.Embedding)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transcriptions (filename, text, timestamps, embedding, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.Filename, t.Text, string(segments), embedding, now,
	)
	if err != nil {
		return fmt.Errorf("insert transcription: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	t.CreatedAt = now
	return nil
}

// SaveVideo inserts v.
func (r *Repository) SaveVideo(ctx context.Context, v *media.Video) error {
	dets, err := json.Marshal(v.Detections)
	if err != nil {
		return fmt.Errorf("encode detections: %w", err)
	}
	embedding, err := encodeEmbedding(v.Embedding)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO videos (filename, detected_objects, summary, embedding, created_at) VALUES (?, ?, ?, ?, ?)`,
		v.Filename, string(dets), v.Summary, embedding, now,
	)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	v.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	v.CreatedAt = now
	return nil
}

// ListTranscriptions returns every transcription in insertion order.
func (r *Repository) ListTranscriptions(ctx context.Context) ([]*media.Transcription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, filename, text, timestamps, embedding, created_at FROM transcriptions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list transcriptions: %w", err)
	}
	defer rows.Close()

	var out []*media.Transcription
	for rows.Next() {
		var (
			t         media.Transcription
			segments  string
			embedding []byte
		)
		if err := rows.Scan(&t.ID, &t.Filename, &t.Text, &segments, &embedding, &t.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(segments), &t.Segments); err != nil {
			return nil, fmt.Errorf("decode segments of transcription %d: %w", t.ID, err)
		}
		if t.Embedding, err = decodeEmbedding(embedding); err != nil {
			return nil, fmt.Errorf("transcription %d: %w", t.ID, err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// ListVideos returns every video record in insertion order.
func (r *Repository) ListVideos(ctx context.Context) ([]*media.Video, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, filename, detected_objects, summary, embedding, created_at FROM videos ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var out []*media.Video
	for rows.Next() {
		var (
			v         media.Video
			dets      string
			embedding []byte
		)
		if err := rows.Scan(&v.ID, &v.Filename, &dets, &v.Summary, &embedding, &v.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(dets), &v.Detections); err != nil {
			return nil, fmt.Errorf("decode detections of video %d: %w", v.ID, err)
		}
		if v.Embedding, err = decodeEmbedding(embedding); err != nil {
			return nil, fmt.Errorf("video %d: %w", v.ID, err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/xraph/mediaq/media"
	"github.com/xraph/mediaq/media/sqlite"
)

func openRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	r, err := sqlite.Open(filepath.Join(t.TempDir(), "media.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRepository_Transcriptions(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()

	tr := &media.Transcription{
		Filename: "a.wav",
		Text:     "hello",
		Segments: []media.Segment{{Start: 0, End: 1.5, Text: "hello", Confidence: 1}},
	}
	if err := r.SaveTranscription(ctx, tr); err != nil {
		t.Fatalf("SaveTranscription: %v", err)
	}
	if tr.ID != 1 || tr.CreatedAt.IsZero() {
		t.Errorf("saved = %+v", tr)
	}
	if err := r.SaveTranscription(ctx, &media.Transcription{Filename: "b.wav"}); err != nil {
		t.Fatal(err)
	}

	list, err := r.ListTranscriptions(ctx)
	if err != nil {
		t.Fatalf("ListTranscriptions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d transcriptions", len(list))
	}
	if list[0].Filename != "a.wav" || len(list[0].Segments) != 1 || list[0].Segments[0].End != 1.5 {
		t.Errorf("first = %+v", list[0])
	}
	if list[1].ID != 2 || list[1].Segments != nil {
		t.Errorf("second = %+v", list[1])
	}
}

func TestRepository_Videos(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()

	v := &media.Video{
		Filename:   "v.mp4",
		Detections: []media.Detection{{Label: "car", Timestamp: 2, Confidence: 0.8}},
		Summary:    media.Summarize([]media.Detection{{Label: "car", Timestamp: 2}}),
	}
	if err := r.SaveVideo(ctx, v); err != nil {
		t.Fatalf("SaveVideo: %v", err)
	}

	list, err := r.ListVideos(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != v.ID || list[0].Summary != v.Summary {
		t.Fatalf("videos = %+v", list)
	}
	if len(list[0].Detections) != 1 || list[0].Detections[0].Label != "car" {
		t.Errorf("detections = %+v", list[0].Detections)
	}
}

func TestRepository_ReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "media.db")
	r, err := sqlite.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.SaveVideo(context.Background(), &media.Video{Filename: "x.mp4"}); err != nil {
		t.Fatal(err)
	}
	_ = r.Close()

	r, err = sqlite.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if err := r.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	list, err := r.ListVideos(context.Background())
	if err != nil || len(list) != 1 {
		t.Errorf("after reopen: %d videos (%v)", len(list), err)
	}
}

func TestRepository_Embeddings(t *testing.T) {
	r := openRepo(t)
	ctx := context.Background()

	if err := r.SaveTranscription(ctx, &media.Transcription{Filename: "a.wav", Text: "cat", Embedding: []float32{1, 0.5}}); err != nil {
		t.Fatal(err)
	}
	if err := r.SaveVideo(ctx, &media.Video{Filename: "v.mp4", Embedding: []float32{0, 1}}); err != nil {
		t.Fatal(err)
	}
	if err := r.SaveVideo(ctx, &media.Video{Filename: "w.mp4"}); err != nil {
		t.Fatal(err)
	}

	trs, err := r.ListTranscriptions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(trs[0].Embedding) != 2 || trs[0].Embedding[1] != 0.5 {
		t.Errorf("transcription embedding = %v", trs[0].Embedding)
	}
	vids, err := r.ListVideos(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(vids[0].Embedding) != 2 || vids[1].Embedding != nil {
		t.Errorf("video embeddings = %v, %v", vids[0].Embedding, vids[1].Embedding)
	}

	res, err := media.NewSearcher(nil, r).Search(ctx, media.SearchQuery{RefType: media.RecordVideo, RefID: vids[0].ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Type != media.RecordTranscription {
		t.Errorf("search = %+v", res)
	}
}

func TestRepository_UpgradesTablesWithoutEmbedding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`
CREATE TABLE transcriptions (id INTEGER PRIMARY KEY AUTOINCREMENT, filename TEXT NOT NULL, text TEXT NOT NULL, timestamps TEXT NOT NULL, created_at DATETIME NOT NULL);
CREATE TABLE videos (id INTEGER PRIMARY KEY AUTOINCREMENT, filename TEXT NOT NULL, detected_objects TEXT NOT NULL, summary TEXT NOT NULL, created_at DATETIME NOT NULL);
INSERT INTO videos (filename, detected_objects, summary, created_at) VALUES ('old.mp4', '[]', 'none', CURRENT_TIMESTAMP);`)
	if err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	r, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	vids, err := r.ListVideos(context.Background())
	if err != nil || len(vids) != 1 || vids[0].Embedding != nil {
		t.Fatalf("videos = %+v, %v", vids, err)
	}
	if err := r.SaveTranscription(context.Background(), &media.Transcription{Filename: "a.wav", Embedding: []float32{1}}); err != nil {
		t.Fatal(err)
	}
}

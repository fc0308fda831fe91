// Package usage records per-generation token usage in a local SQLite
// database. Recording is strictly best-effort: a full queue or a write
// failure never affects the generation that produced the record.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nmhq/claude-bridge/internal/anthropic"
	log "github.com/nmhq/claude-bridge/internal/logging"
)

const recordQueueSize = 256

const schema = `
CREATE TABLE IF NOT EXISTS generations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL,
	streamed INTEGER NOT NULL DEFAULT 0,
	estimated INTEGER NOT NULL DEFAULT 0,
	finish_reason TEXT NOT NULL DEFAULT '',
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations(created_at);
CREATE INDEX IF NOT EXISTS idx_generations_model ON generations(model);
`

// Totals aggregates recorded usage.
type Totals struct {
	Generations      int64
	PromptTokens     int64
	CompletionTokens int64
}

// Recorder persists generation records through a single writer goroutine.
type Recorder struct {
	db       *sql.DB
	records  chan anthropic.GenerationRecord
	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewRecorder opens (creating if needed) the database at path.
func NewRecorder(path string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create usage directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open usage database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init usage schema: %w", err)
	}

	r := &Recorder{
		db:      db,
		records: make(chan anthropic.GenerationRecord, recordQueueSize),
		stop:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.writeLoop()
	return r, nil
}

var _ anthropic.UsageObserver = (*Recorder)(nil)

// ObserveGeneration queues one record. When the stream ended without usage
// data the completion count is estimated from the accumulated text. Drops the
// record if the queue is full.
func (r *Recorder) ObserveGeneration(_ context.Context, rec anthropic.GenerationRecord) {
	if rec.Estimated && rec.Usage.CompletionTokens == 0 {
		rec.Usage.CompletionTokens = EstimateTokens(rec.Text)
	}
	rec.Text = ""

	select {
	case r.records <- rec:
	default:
		log.Warnf("usage: record queue full, dropping record for model %s", rec.Model)
	}
}

func (r *Recorder) writeLoop() {
	defer r.wg.Done()
	for {
		select {
		case rec := <-r.records:
			r.insert(rec)
		case <-r.stop:
			// Drain whatever is already queued before shutting down.
			for {
				select {
				case rec := <-r.records:
					r.insert(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) insert(rec anthropic.GenerationRecord) {
	_, err := r.db.Exec(
		`INSERT INTO generations
			(request_id, model, streamed, estimated, finish_reason, prompt_tokens, completion_tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Model, boolToInt(rec.Streamed), boolToInt(rec.Estimated),
		string(rec.FinishReason), rec.Usage.PromptTokens, rec.Usage.CompletionTokens,
		time.Now().UTC(),
	)
	if err != nil {
		log.Warnf("usage: insert failed: %v", err)
	}
}

// TotalsSince aggregates usage recorded at or after since.
func (r *Recorder) TotalsSince(ctx context.Context, since time.Time) (*Totals, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0)
		 FROM generations WHERE created_at >= ?`, since.UTC())

	totals := &Totals{}
	if err := row.Scan(&totals.Generations, &totals.PromptTokens, &totals.CompletionTokens); err != nil {
		return nil, fmt.Errorf("query usage totals: %w", err)
	}
	return totals, nil
}

// Close flushes queued records and closes the database.
func (r *Recorder) Close() error {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

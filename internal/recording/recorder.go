// Package recording persists request and response payloads to SQLite for
// offline inspection. Writes happen on a background goroutine so recording
// never adds latency to the streaming path.
package recording

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one recorded exchange. RequestHeaders are redacted before they
// are persisted, so callers can hand over the upstream headers as sent.
type Entry struct {
	RequestID      string
	Model          string
	Backend        string
	UpstreamURL    string
	RequestHeaders http.Header
	RequestBody    []byte
	ResponseBody   []byte
	Status         string
	DurationNS     int64
}

// Recorder writes entries to SQLite from a single background goroutine.
type Recorder struct {
	db     *sql.DB
	logger *slog.Logger
	queue  chan Entry
	done   chan struct{}
}

// New opens (or creates) the database at path and starts the writer.
func New(path string, logger *slog.Logger) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS recordings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		model TEXT NOT NULL,
		backend TEXT NOT NULL,
		upstream_url TEXT,
		request_headers TEXT,
		request_body TEXT,
		response_body TEXT,
		status TEXT NOT NULL,
		duration_ns INTEGER,
		created_at TIMESTAMP NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	r := &Recorder{
		db:     db,
		logger: logger,
		queue:  make(chan Entry, 64),
		done:   make(chan struct{}),
	}
	go r.run()

	return r, nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for entry := range r.queue {
		headers, _ := json.Marshal(RedactHeaders(entry.RequestHeaders))
		_, err := r.db.Exec(
			`INSERT INTO recordings
			 (request_id, model, backend, upstream_url, request_headers, request_body, response_body, status, duration_ns, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.RequestID, entry.Model, entry.Backend, entry.UpstreamURL,
			string(headers), string(entry.RequestBody), string(entry.ResponseBody),
			entry.Status, entry.DurationNS, time.Now().UTC(),
		)
		if err != nil {
			r.logger.Warn("failed to record exchange",
				slog.String("request_id", entry.RequestID),
				slog.String("error", err.Error()))
		}
	}
}

// Record queues an entry for persistence. When the queue is full the entry
// is dropped rather than blocking the request.
func (r *Recorder) Record(entry Entry) {
	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("recording queue full, dropping entry",
			slog.String("request_id", entry.RequestID))
	}
}

// Close drains the queue and closes the database.
func (r *Recorder) Close() error {
	close(r.queue)
	<-r.done
	return r.db.Close()
}

// RedactHeaders returns a copy of h with credential-bearing values masked.
// Recorded exchanges must never contain upstream keys.
func RedactHeaders(h http.Header) http.Header {
	out := h.Clone()
	for _, name := range []string{"Authorization", "Api-Key", "X-Api-Key"} {
		if out.Get(name) != "" {
			out.Set(name, "REDACTED")
		}
	}
	return out
}

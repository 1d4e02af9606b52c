// internal/journal/journal.go
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    device TEXT NOT NULL,
    metric TEXT,
    event_type TEXT NOT NULL,
    previous_value TEXT,
    new_value TEXT,
    detail TEXT,
    command_id TEXT
);
CREATE INDEX IF NOT EXISTS events_device ON events(device, id);`

const insertSQL = `INSERT INTO events(timestamp, device, metric, event_type, previous_value, new_value, detail, command_id)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)`

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Journal persists engine events to a sqlite file. Record never blocks;
// a single goroutine (Run) performs every insert.
type Journal struct {
	db      *sql.DB
	events  chan fleet.Event
	log     zerolog.Logger
	dropped atomic.Uint64
}

// Open creates or opens the journal database.
func Open(path string, buffer int, logger zerolog.Logger) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal: path required")
	}
	if buffer <= 0 {
		return nil, errors.New("journal: buffer must be > 0")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: create table in %s: %w", path, err)
	}

	j := &Journal{
		db:     db,
		events: make(chan fleet.Event, buffer),
		log:    logger.With().Str("component", "journal").Str("path", path).Logger(),
	}
	j.log.Info().Msg("journal opened")
	return j, nil
}

// Record queues an event. When the queue is full the event is dropped.
func (j *Journal) Record(e fleet.Event) {
	select {
	case j.events <- e:
	default:
		n := j.dropped.Add(1)
		j.log.Warn().Str("device", e.Device).Str("type", string(e.Type)).Uint64("dropped", n).Msg("journal queue full, event dropped")
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Run drains the queue into the database until ctx is cancelled. Events
// still queued at cancellation are written before it returns.
func (j *Journal) Run(ctx context.Context) {
	j.log.Debug().Msg("journal writer started")
	defer j.log.Debug().Msg("journal writer stopped")

	for {
		select {
		case e := <-j.events:
			j.write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-j.events:
					j.write(e)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) write(e fleet.Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := j.db.Exec(insertSQL,
		e.At.UTC().Format(timeLayout),
		e.Device,
		e.Metric,
		string(e.Type),
		e.Previous,
		e.Value,
		e.Detail,
		e.CommandID,
	)
	if err != nil {
		j.log.Error().Err(err).Str("device", e.Device).Str("type", string(e.Type)).Msg("insert event failed")
	}
}

// Recent returns up to limit events, newest first. An empty device
// selects the whole fleet.
func (j *Journal) Recent(ctx context.Context, device string, limit int) ([]fleet.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	q := `SELECT timestamp, device, metric, event_type, previous_value, new_value, detail, command_id FROM events`
	args := []any{}
	if device != "" {
		q += ` WHERE device = ?`
		args = append(args, device)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []fleet.Event
	for rows.Next() {
		var (
			ts, typ                                   string
			metric, prev, val, detail, id, deviceName sql.NullString
		)
		if err := rows.Scan(&ts, &deviceName, &metric, &typ, &prev, &val, &detail, &id); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		at, err := time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("journal: bad timestamp %q: %w", ts, err)
		}
		out = append(out, fleet.Event{
			At:        at,
			Device:    deviceName.String,
			Metric:    metric.String,
			Type:      fleet.EventType(typ),
			Previous:  prev.String,
			Value:     val.String,
			Detail:    detail.String,
			CommandID: id.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: rows: %w", err)
	}
	return out, nil
}

// Close closes the database. Call after Run has returned.
func (j *Journal) Close() error {
	return j.db.Close()
}

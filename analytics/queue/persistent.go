package queue

import (
	"encoding/json"
	"fmt"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `CREATE TABLE IF NOT EXISTS analytics_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL DEFAULT (DATETIME('now')),
	message TEXT NOT NULL
);`

// Persistent is the sqlite-backed queue variant. A single connection is
// shared under a mutex; the launcher is the only writer on the host.
type Persistent struct {
	mu    sync.Mutex
	conn  *sqlite.Conn
	limit int
}

func NewPersistent(path string, limit int) (*Persistent, error) {
	if limit <= 0 {
		limit = DefaultEventCountLimit
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return nil, fmt.Errorf("cannot open event database %s: %w", path, err)
	}
	if err := sqlitex.ExecuteTransient(conn, schema, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("cannot create analytics_events table: %w", err)
	}
	return &Persistent{conn: conn, limit: limit}, nil
}

func (q *Persistent) Enqueue(message json.RawMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	err := sqlitex.ExecuteTransient(q.conn, `INSERT INTO analytics_events (message) VALUES (?);`, &sqlitex.ExecOptions{
		Args: []any{string(message)},
	})
	if err != nil {
		return fmt.Errorf("cannot insert event: %w", err)
	}

	count, err := q.countLocked()
	if err != nil {
		return err
	}
	if overflow := count - int64(q.limit); overflow > 0 {
		err = sqlitex.ExecuteTransient(q.conn, `DELETE FROM analytics_events WHERE id IN (
			SELECT id FROM analytics_events ORDER BY timestamp ASC, id ASC LIMIT ?
		);`, &sqlitex.ExecOptions{
			Args: []any{overflow},
		})
		if err != nil {
			return fmt.Errorf("cannot trim event queue: %w", err)
		}
	}
	return nil
}

func (q *Persistent) Peek() (event Event, ok bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	err = sqlitex.ExecuteTransient(q.conn, `SELECT id, message FROM analytics_events ORDER BY timestamp ASC, id ASC LIMIT 1;`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			event = Event{
				ID:      stmt.ColumnInt64(0),
				Message: json.RawMessage(stmt.ColumnText(1)),
			}
			ok = true
			return nil
		},
	})
	if err != nil {
		return Event{}, false, fmt.Errorf("cannot read event queue: %w", err)
	}
	return event, ok, nil
}

func (q *Persistent) Consume(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	err := sqlitex.ExecuteTransient(q.conn, `DELETE FROM analytics_events WHERE id = ?;`, &sqlitex.ExecOptions{
		Args: []any{id},
	})
	if err != nil {
		return fmt.Errorf("cannot consume event %d: %w", id, err)
	}
	return nil
}

func (q *Persistent) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.conn.Close()
}

// Len reports the current queue depth.
func (q *Persistent) Len() (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.countLocked()
}

func (q *Persistent) countLocked() (count int64, err error) {
	err = sqlitex.ExecuteTransient(q.conn, `SELECT COUNT(*) FROM analytics_events;`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("cannot count events: %w", err)
	}
	return count, nil
}

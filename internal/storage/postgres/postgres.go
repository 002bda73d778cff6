package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	RoomID    string                 `json:"room_id"`
	SessionID *string                `json:"session_id,omitempty"`
}

// Client manages the Postgres connection for event storage.
type Client struct {
	db     *sql.DB
	roomID string
}

// Options selects the database. Zero fields fall back to PG* environment
// variables and then to local defaults.
type Options struct {
	Host     string
	Port     string
	User     string
	Database string
	Password string
	RoomID   string
}

func (o Options) withEnv() Options {
	if o.Host == "" {
		o.Host = getEnv("PGHOST", "127.0.0.1")
	}
	if o.Port == "" {
		o.Port = getEnv("PGPORT", "5432")
	}
	if o.User == "" {
		o.User = getEnv("PGUSER", "foleysim")
	}
	if o.Database == "" {
		o.Database = getEnv("PGDATABASE", "foleysim")
	}
	return o
}

// DSN renders the lib/pq connection string.
func (o Options) DSN() string {
	o = o.withEnv()
	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable", o.Host, o.Port, o.User, o.Database)
	if o.Password != "" {
		dsn += " password=" + o.Password
	}
	return dsn
}

// New connects and ensures the events table exists.
func New(opts Options) (*Client, error) {
	db, err := sql.Open("postgres", opts.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:     db,
		roomID: opts.RoomID,
	}

	if err := client.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}

	return client, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (c *Client) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			room_id    TEXT NOT NULL,
			session_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_events_room_id ON events(room_id);
		CREATE INDEX IF NOT EXISTS idx_events_session_id ON events(session_id);
	`
	_, err := c.db.Exec(query)
	return err
}

// Append inserts an event into the database.
// Returns error if insert fails.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	var sessionPtr *string
	if sessionID != "" {
		sessionPtr = &sessionID
	}

	query := `
		INSERT INTO events (ts, level, event, msg, fields, room_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, msgPtr, fieldsJSON, c.roomID, sessionPtr)
	return err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	if limit > 10000 {
		return 10000
	}
	return limit
}

// Query returns the last N events of the room, newest first.
func (c *Client) Query(limit int) ([]EventRow, error) {
	rows, err := c.db.Query(`
		SELECT event_id, ts, level, event, msg, fields, room_id, session_id
		FROM events
		WHERE room_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`, c.roomID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// QuerySession returns one play-through's events in emission order.
func (c *Client) QuerySession(sessionID string, limit int) ([]EventRow, error) {
	rows, err := c.db.Query(`
		SELECT event_id, ts, level, event, msg, fields, room_id, session_id
		FROM events
		WHERE room_id = $1 AND session_id = $2
		ORDER BY event_id ASC
		LIMIT $3
	`, c.roomID, sessionID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// SessionSummary describes one recorded play-through.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Started   time.Time `json:"started"`
	LastEvent time.Time `json:"last_event"`
	Completed bool      `json:"completed"`
	Events    int       `json:"events"`
}

// Sessions lists recorded play-throughs, newest first.
func (c *Client) Sessions(limit int) ([]SessionSummary, error) {
	rows, err := c.db.Query(`
		SELECT session_id, MIN(ts), MAX(ts),
		       BOOL_OR(event = 'session.completed'), COUNT(*)
		FROM events
		WHERE room_id = $1 AND session_id IS NOT NULL
		GROUP BY session_id
		ORDER BY MIN(ts) DESC
		LIMIT $2
	`, c.roomID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.SessionID, &s.Started, &s.LastEvent, &s.Completed, &s.Events); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]EventRow, error) {
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, sessionID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.RoomID, &sessionID); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if sessionID.Valid {
			e.SessionID = &sessionID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

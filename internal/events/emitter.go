package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/FoleySim/internal/storage/postgres"
)

var (
	buffer = NewRingBuffer(256)
	total  atomic.Uint64
)

// Appender persists events. *postgres.Client satisfies it.
type Appender interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error
}

var (
	pgClient      *postgres.Client
	sink          Appender
	pgMu          sync.RWMutex
	pgErrorLogged bool

	sessionMu sync.RWMutex
	sessionID string
)

// SetPostgresClient sets the Postgres client for event persistence.
func SetPostgresClient(client *postgres.Client) {
	pgMu.Lock()
	pgClient = client
	if client != nil {
		sink = client
	} else {
		sink = nil
	}
	pgErrorLogged = false
	pgMu.Unlock()
}

// GetPostgresClient returns the current Postgres client (for API queries).
func GetPostgresClient() *postgres.Client {
	pgMu.RLock()
	defer pgMu.RUnlock()
	return pgClient
}

// SetAppender replaces the persistence sink without a Postgres client.
func SetAppender(a Appender) {
	pgMu.Lock()
	pgClient = nil
	sink = a
	pgErrorLogged = false
	pgMu.Unlock()
}

// BeginSession starts a new play-through and returns its id. Events emitted
// afterwards carry the id until EndSession.
func BeginSession() string {
	id := uuid.NewString()
	sessionMu.Lock()
	sessionID = id
	sessionMu.Unlock()
	return id
}

// EndSession clears the current session id.
func EndSession() {
	sessionMu.Lock()
	sessionID = ""
	sessionMu.Unlock()
}

// SessionID returns the current session id, or "" between sessions.
func SessionID() string {
	sessionMu.RLock()
	defer sessionMu.RUnlock()
	return sessionID
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
}

func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
		SessionID: SessionID(),
	}

	buffer.Add(e)
	total.Add(1)
	broadcast(e)

	// Persist (non-blocking, error-resistant)
	pgMu.RLock()
	store := sink
	pgMu.RUnlock()

	if store != nil {
		if err := store.Append(ts, level, name, msg, fields, e.SessionID); err != nil {
			recordPersistError(err)
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return b, nil
}

// recordPersistError adds one system.error straight to the buffer. It must
// not go through Emit, or a failing store would recurse.
func recordPersistError(err error) {
	pgMu.Lock()
	if pgErrorLogged {
		pgMu.Unlock()
		return
	}
	pgErrorLogged = true
	pgMu.Unlock()

	errEvent := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   "event append failed",
		Fields: map[string]interface{}{
			"error": err.Error(),
		},
		SessionID: SessionID(),
	}
	buffer.Add(errEvent)
	broadcast(errEvent)
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() uint64 {
	return total.Load()
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}

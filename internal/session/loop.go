// Package session runs a play-through: it owns the sequencer and feeds it
// host inputs one at a time from a single goroutine, plus the frame tick.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AaronLay10/FoleySim/internal/events"
	"github.com/AaronLay10/FoleySim/internal/grab"
	"github.com/AaronLay10/FoleySim/internal/orchestrator"
	"github.com/AaronLay10/FoleySim/internal/scene"
	"github.com/AaronLay10/FoleySim/internal/spatial"
)

// ErrStopped is returned for inputs submitted after the loop exits.
var ErrStopped = errors.New("session loop stopped")

// Factory builds a fresh sequencer for each play-through.
type Factory func() (*orchestrator.Sequencer, error)

type command struct {
	name string
	fn   func(*orchestrator.Sequencer) error
	res  chan error
}

// Loop serializes all inputs to the active sequencer.
type Loop struct {
	factory Factory
	cmds    chan command
	done    chan struct{}
	tick    time.Duration
	log     zerolog.Logger

	mu        sync.RWMutex
	seq       *orchestrator.Sequencer
	sessionID string
	completed bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithTickInterval sets the frame tick period. Zero disables ticking.
func WithTickInterval(d time.Duration) Option {
	return func(l *Loop) { l.tick = d }
}

// WithLogger sets the diagnostic logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loop) { l.log = log }
}

// New creates a loop. Run must be called before inputs are accepted.
func New(factory Factory, opts ...Option) *Loop {
	l := &Loop{
		factory: factory,
		cmds:    make(chan command),
		done:    make(chan struct{}),
		tick:    50 * time.Millisecond,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run starts the first play-through and processes inputs until ctx is
// cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	if err := l.start(); err != nil {
		return err
	}
	defer l.stop()

	var tickC <-chan time.Time
	if l.tick > 0 {
		ticker := time.NewTicker(l.tick)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-l.cmds:
			err := l.handle(c.name, c.fn(l.current()))
			l.checkTerminal()
			c.res <- err
		case <-tickC:
			if err := l.current().Tick(); err != nil {
				l.log.Debug().Err(err).Msg("tick failed")
			}
		}
	}
}

func (l *Loop) current() *orchestrator.Sequencer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

func (l *Loop) start() error {
	seq, err := l.factory()
	if err != nil {
		return err
	}
	id := events.BeginSession()

	l.mu.Lock()
	l.seq = seq
	l.sessionID = id
	l.completed = false
	l.mu.Unlock()

	events.Emit("info", "session.started", "", map[string]interface{}{"steps": seq.StepCount()})
	l.log.Info().Str("session_id", id).Msg("session started")
	return seq.Begin()
}

func (l *Loop) stop() {
	if seq := l.current(); seq != nil {
		seq.Close()
	}
	events.EndSession()
}

// handle logs and filters a sequencer error. Invalid grabs and missing
// references are diagnostics only; the learner never sees them.
func (l *Loop) handle(name string, err error) error {
	if err == nil {
		return nil
	}
	var missing *scene.MissingReferenceError
	switch {
	case errors.Is(err, grab.ErrInvalidGrab), errors.As(err, &missing):
		l.log.Debug().Err(err).Str("input", name).Msg("input ignored")
		return nil
	case errors.Is(err, orchestrator.ErrSessionComplete):
		l.markCompleted()
	default:
		l.log.Info().Err(err).Str("input", name).Msg("input rejected")
	}
	return err
}

func (l *Loop) checkTerminal() {
	seq := l.current()
	if step, ok := seq.Step(seq.State().CurrentStep); ok && step.Terminal {
		l.markCompleted()
	}
}

func (l *Loop) markCompleted() {
	l.mu.Lock()
	first := !l.completed
	l.completed = true
	id := l.sessionID
	l.mu.Unlock()
	if first {
		events.Emit("info", "session.completed", "", nil)
		l.log.Info().Str("session_id", id).Msg("session completed")
	}
}

// do runs fn on the loop goroutine and waits for its result.
func (l *Loop) do(ctx context.Context, name string, fn func(*orchestrator.Sequencer) error) error {
	c := command{name: name, fn: fn, res: make(chan error, 1)}
	select {
	case l.cmds <- c:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GrabStart forwards a grab-start.
func (l *Loop) GrabStart(cid scene.ControllerID, id scene.ObjectID) error {
	return l.do(context.Background(), "grab_start", func(s *orchestrator.Sequencer) error {
		return s.GrabStart(cid, id)
	})
}

// GrabEnd forwards a grab-end.
func (l *Loop) GrabEnd(cid scene.ControllerID) error {
	return l.do(context.Background(), "grab_end", func(s *orchestrator.Sequencer) error {
		return s.GrabEnd(cid)
	})
}

// UpdateController moves a controller frame in input order.
func (l *Loop) UpdateController(cid scene.ControllerID, pose spatial.Pose) error {
	return l.do(context.Background(), "pose", func(s *orchestrator.Sequencer) error {
		s.UpdateController(cid, pose)
		return nil
	})
}

// ConfirmAction forwards an explicit step action.
func (l *Loop) ConfirmAction(name string) error {
	return l.do(context.Background(), "confirm", func(s *orchestrator.Sequencer) error {
		return s.ConfirmAction(name)
	})
}

// Advance requests the next step.
func (l *Loop) Advance() error {
	return l.do(context.Background(), "advance", func(s *orchestrator.Sequencer) error {
		return s.Advance()
	})
}

// Skip requests a skip of the current step.
func (l *Loop) Skip() error {
	return l.do(context.Background(), "skip", func(s *orchestrator.Sequencer) error {
		if err := s.Skip(); err != nil {
			return err
		}
		events.Emit("info", "step.skipped", "", map[string]interface{}{"step": s.State().CurrentStep - 1})
		return nil
	})
}

// Evaluate re-checks the active step's gate.
func (l *Loop) Evaluate() (bool, error) {
	var open bool
	err := l.do(context.Background(), "evaluate", func(s *orchestrator.Sequencer) error {
		var err error
		open, err = s.Evaluate()
		return err
	})
	return open, err
}

// ReleaseHands ends the grabs of controllers that went offline.
func (l *Loop) ReleaseHands(headsetID string, hands []scene.ControllerID) {
	for _, cid := range hands {
		err := l.do(context.Background(), "release", func(s *orchestrator.Sequencer) error {
			return s.ReleaseController(cid)
		})
		if err != nil && !errors.Is(err, ErrStopped) {
			l.log.Warn().Err(err).Str("headset", headsetID).Str("hand", string(cid)).Msg("release failed")
		}
	}
}

// Restart discards the current play-through and begins a new one.
func (l *Loop) Restart() error {
	return l.do(context.Background(), "restart", func(s *orchestrator.Sequencer) error {
		s.Close()
		events.EndSession()
		return l.start()
	})
}

// Status snapshots the active sequencer.
func (l *Loop) Status() (orchestrator.Status, string) {
	l.mu.RLock()
	seq, id := l.seq, l.sessionID
	l.mu.RUnlock()
	if seq == nil {
		return orchestrator.Status{}, ""
	}
	return seq.Status(), id
}

// Completed reports whether the current play-through has finished.
func (l *Loop) Completed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.completed
}

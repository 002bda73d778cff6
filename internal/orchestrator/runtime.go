package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AaronLay10/FoleySim/internal/compose"
	"github.com/AaronLay10/FoleySim/internal/gate"
	"github.com/AaronLay10/FoleySim/internal/grab"
	"github.com/AaronLay10/FoleySim/internal/scene"
	"github.com/AaronLay10/FoleySim/internal/spatial"
)

// Timing holds the presentation delays the sequencer schedules.
type Timing struct {
	MediaDelay      time.Duration
	FeedbackDismiss time.Duration
}

// DefaultTiming matches the headset build: videos start 4s after a step is
// entered and feedback panels close after 3s.
func DefaultTiming() Timing {
	return Timing{MediaDelay: 4 * time.Second, FeedbackDismiss: 3 * time.Second}
}

// Sequencer is the procedure state machine. It owns the simulation state
// and drives the registry, grab tracker and evaluator. Every exported method
// is safe to call from any goroutine; calls are serialized.
type Sequencer struct {
	mu        sync.Mutex
	steps     []Step
	reg       *scene.Registry
	grabs     *grab.Tracker
	composer  *compose.Manager
	eval      *gate.Evaluator
	indicator *IndicatorController
	sched     *Scheduler
	cues      CuePlayer
	observer  Observer
	timing    Timing
	state     SimulationState
	shown     uint64 // feedback messages shown, for dismissal
	started   bool
	closed    bool
	log       zerolog.Logger
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithObserver sets the notification sink.
func WithObserver(o Observer) Option {
	return func(s *Sequencer) { s.observer = o }
}

// WithCuePlayer sets the media sink.
func WithCuePlayer(c CuePlayer) Option {
	return func(s *Sequencer) { s.cues = c }
}

// WithTiming overrides the presentation delays.
func WithTiming(t Timing) Option {
	return func(s *Sequencer) { s.timing = t }
}

// WithScheduler replaces the delayed-callback scheduler.
func WithScheduler(sched *Scheduler) Option {
	return func(s *Sequencer) { s.sched = sched }
}

// WithLogger sets the diagnostic logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Sequencer) { s.log = log }
}

// NewSequencer builds the registry and rule set described by proc.
func NewSequencer(proc *Procedure, opts ...Option) (*Sequencer, error) {
	s := &Sequencer{
		steps:    append([]Step(nil), proc.Steps...),
		observer: NopObserver{},
		cues:     NopCuePlayer{},
		timing:   DefaultTiming(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sched == nil {
		s.sched = NewScheduler(nil)
	}

	s.reg = scene.NewRegistry()
	specs, err := proc.ObjectSpecs()
	if err != nil {
		return nil, err
	}
	for _, spec := range specs {
		if err := s.reg.Register(spec); err != nil {
			return nil, err
		}
	}
	s.reg.OnChange(func(id scene.ObjectID, visible bool) {
		s.observer.ItemStateChanged(id, visible)
	})

	s.grabs = grab.NewTracker(s.reg, s.log)
	copts, err := proc.ComposeOptions()
	if err != nil {
		return nil, err
	}
	s.composer = compose.NewManager(s.reg, s.grabs, append(copts, compose.WithLogger(s.log))...)

	gcfg, err := proc.GateConfig()
	if err != nil {
		return nil, err
	}
	s.eval, err = gate.New(gcfg, s.reg, s.grabs, s.composer, s.log)
	if err != nil {
		return nil, err
	}
	for _, step := range s.steps {
		if err := s.eval.Validate(step.StepRules); err != nil {
			return nil, fmt.Errorf("step %d: %w", step.Ordinal, err)
		}
		if step.ActionDeploy != scene.NoObject {
			if _, ok := s.eval.DeployRule(step.ActionDeploy); !ok {
				return nil, fmt.Errorf("step %d: no deploy rule produces %s", step.Ordinal, step.ActionDeploy)
			}
		}
	}
	s.indicator = NewIndicatorController(s.reg, s.eval)
	s.log = s.log.With().Str("component", "sequencer").Logger()
	return s, nil
}

// Begin enters step 0 with the gate closed.
func (s *Sequencer) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return fmt.Errorf("session already started")
	}
	s.started = true
	s.state = SimulationState{}
	s.enter(0)
	return nil
}

// Close cancels pending media and feedback callbacks. Later calls return
// ErrNotStarted.
func (s *Sequencer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.sched.Stop()
	if s.started {
		if err := s.cues.CancelAll(); err != nil {
			s.log.Warn().Err(err).Msg("cancel cues failed")
		}
	}
	s.started = false
}

// Evaluate re-runs the active step's predicate and sets the gate from it.
func (s *Sequencer) Evaluate() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return false, ErrNotStarted
	}
	return s.evaluate(gate.Trigger{Kind: gate.TriggerManual})
}

// EvaluateStep evaluates the predicate of a specific step. Only the active
// step may be evaluated; anything else yields ErrWrongStep.
func (s *Sequencer) EvaluateStep(ordinal int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return false, ErrNotStarted
	}
	if ordinal != s.state.CurrentStep {
		return false, fmt.Errorf("%w: step %d requested, %d active", ErrWrongStep, ordinal, s.state.CurrentStep)
	}
	return s.evaluate(gate.Trigger{Kind: gate.TriggerManual})
}

// Advance moves to the next step if the gate is open. On the terminal step
// it returns ErrSessionComplete and changes nothing.
func (s *Sequencer) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	cur := s.steps[s.state.CurrentStep]
	if cur.Terminal {
		return ErrSessionComplete
	}
	if !s.state.GateOpen {
		return ErrGateClosed
	}
	s.move(s.state.CurrentStep + 1)
	return nil
}

// Skip moves forward without testing the gate. Only steps marked
// skippable accept it.
func (s *Sequencer) Skip() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	if !s.steps[s.state.CurrentStep].Skippable {
		return fmt.Errorf("%w: step %d", ErrSkipUnavailable, s.state.CurrentStep)
	}
	s.move(s.state.CurrentStep + 1)
	return nil
}

// GrabStart attaches id to controller cid. Invalid grabs return
// grab.ErrInvalidGrab and change nothing.
func (s *Sequencer) GrabStart(cid scene.ControllerID, id scene.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	if err := s.grabs.Start(cid, id); err != nil {
		s.log.Debug().Err(err).Str("controller", string(cid)).Stringer("item", id).Msg("grab ignored")
		return err
	}
	s.observer.Grab(cid, id, true)

	step := s.steps[s.state.CurrentStep]
	out, err := s.eval.GrabStarted(step.Ordinal, s.state.CurrentStep, step.StepRules, id)
	if err != nil {
		return err
	}
	s.apply(out)
	s.refreshHints()
	return nil
}

// GrabEnd releases whatever cid holds and re-evaluates the active step
// exactly once. An empty hand is not reported as a grab.
func (s *Sequencer) GrabEnd(cid scene.ControllerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	id, held := s.grabs.End(cid)
	if held {
		s.observer.Grab(cid, id, false)
	}
	_, err := s.evaluate(gate.Trigger{Kind: gate.TriggerGrabEnd, Object: id})
	return err
}

// ConfirmAction records an explicit step action such as "inflate" and
// re-evaluates. Actions belonging to other steps yield ErrWrongStep.
func (s *Sequencer) ConfirmAction(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	step := s.steps[s.state.CurrentStep]
	if step.Action == "" || step.Action != name {
		return fmt.Errorf("%w: action %q not accepted on step %d", ErrWrongStep, name, step.Ordinal)
	}
	s.eval.Progress().Set(name)
	if step.ActionDeploy != scene.NoObject {
		if _, err := s.eval.Deploy(step.ActionDeploy); err != nil {
			s.log.Warn().Err(err).Str("action", name).Msg("action swap failed")
		}
	}
	_, err := s.evaluate(gate.Trigger{Kind: gate.TriggerAction})
	return err
}

// Tick is called once per rendered frame. Only steps marked poll are
// re-evaluated.
func (s *Sequencer) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || !s.steps[s.state.CurrentStep].Poll {
		return nil
	}
	_, err := s.evaluate(gate.Trigger{Kind: gate.TriggerTick})
	return err
}

// UpdateController moves a controller frame. Held props follow it.
func (s *Sequencer) UpdateController(cid scene.ControllerID, pose spatial.Pose) {
	s.reg.SetControllerPose(cid, pose)
}

// ReleaseController drops whatever a lost controller holds.
func (s *Sequencer) ReleaseController(cid scene.ControllerID) error {
	s.mu.Lock()
	held := false
	if s.started {
		_, held = s.grabs.Held(cid)
	}
	s.mu.Unlock()
	if !held {
		return nil
	}
	return s.GrabEnd(cid)
}

// State returns the current simulation state.
func (s *Sequencer) State() SimulationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Step returns a step table entry.
func (s *Sequencer) Step(ordinal int) (Step, bool) {
	if ordinal < 0 || ordinal >= len(s.steps) {
		return Step{}, false
	}
	return s.steps[ordinal], true
}

// StepCount returns the number of steps.
func (s *Sequencer) StepCount() int { return len(s.steps) }

// Registry exposes the interactable registry for read access.
func (s *Sequencer) Registry() *scene.Registry { return s.reg }

// Status is a JSON-friendly view of the sequencer.
type Status struct {
	State     SimulationState   `json:"state"`
	Started   bool              `json:"started"`
	Prompt    string            `json:"prompt"`
	Terminal  bool              `json:"terminal"`
	Skippable bool              `json:"skippable"`
	Action    string            `json:"action,omitempty"`
	Hints     []string          `json:"hints"`
	Held      map[string]string `json:"held"`
}

// Status snapshots the sequencer for the operator surface.
func (s *Sequencer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := s.steps[s.state.CurrentStep]
	st := Status{
		State:     s.state,
		Started:   s.started,
		Prompt:    step.Prompt,
		Terminal:  step.Terminal,
		Skippable: step.Skippable,
		Action:    step.Action,
		Hints:     []string{},
		Held:      map[string]string{},
	}
	for _, id := range s.indicator.Current() {
		st.Hints = append(st.Hints, id.String())
	}
	for _, g := range s.grabs.Sessions() {
		st.Held[string(g.Controller)] = g.Object.String()
	}
	return st
}

func (s *Sequencer) move(next int) {
	s.exit()
	s.state = SimulationState{CurrentStep: next}
	s.enter(next)
}

func (s *Sequencer) exit() {
	if s.indicator.Clear() {
		s.observer.Hints(nil)
	}
}

func (s *Sequencer) enter(ordinal int) {
	s.sched.Bump()
	if err := s.cues.CancelAll(); err != nil {
		s.log.Warn().Err(err).Msg("cancel cues failed")
	}

	step := s.steps[ordinal]
	for _, id := range step.Reveal {
		if err := s.composer.Reveal(id); err != nil {
			s.log.Warn().Err(err).Int("step", ordinal).Msg("reveal failed")
		}
	}
	for _, id := range step.Grabbable {
		if err := s.composer.AllowGrab(id); err != nil {
			s.log.Debug().Err(err).Int("step", ordinal).Msg("grabbable not widened")
		}
	}

	s.log.Info().Int("step", ordinal).Msg("step entered")
	s.observer.StepChanged(ordinal, step.Prompt)
	s.play(Cue{Kind: CueNarration, Path: step.Narration, Step: ordinal})
	if step.Video != "" {
		video := Cue{Kind: CueVideo, Path: step.Video, Step: ordinal}
		s.later(s.timing.MediaDelay, func() { s.play(video) })
	}
	if step.Terminal {
		s.state.GateOpen = true
		s.observer.GateOpened(ordinal)
	}
	s.refreshHints()
}

func (s *Sequencer) evaluate(trig gate.Trigger) (bool, error) {
	cur := s.state.CurrentStep
	step := s.steps[cur]
	if step.Terminal {
		return true, nil
	}
	out, err := s.eval.Evaluate(step.Ordinal, cur, step.StepRules, trig)
	if err != nil {
		s.log.Warn().Err(err).Int("step", cur).Msg("evaluation failed")
		return false, err
	}
	s.apply(out)

	wasOpen := s.state.GateOpen
	s.state.GateOpen = out.Satisfied
	if out.Satisfied && !wasOpen {
		s.log.Info().Int("step", cur).Msg("gate opened")
		s.observer.GateOpened(cur)
		if step.Success != "" {
			s.feedback(gate.Feedback{Message: step.Success})
		}
	}
	s.refreshHints()
	return out.Satisfied, nil
}

func (s *Sequencer) apply(out gate.Outcome) {
	for _, id := range out.Composed {
		s.observer.Composed(id)
	}
	for _, f := range out.Feedback {
		s.feedback(f)
	}
	for _, path := range out.Cues {
		s.play(Cue{Kind: CueSFX, Path: path, Step: s.state.CurrentStep})
	}
}

func (s *Sequencer) feedback(f gate.Feedback) {
	s.observer.Feedback(f.Message, f.IsError)
	s.shown++
	seq := s.shown
	s.later(s.timing.FeedbackDismiss, func() {
		// a newer message owns the panel
		if s.shown == seq {
			s.observer.FeedbackCleared()
		}
	})
}

func (s *Sequencer) play(c Cue) {
	if err := s.cues.Play(c); err != nil {
		s.log.Warn().Err(err).Str("path", c.Path).Msg("cue failed")
	}
}

// later runs fn after d unless the step changes first. fn runs with the
// sequencer lock held.
func (s *Sequencer) later(d time.Duration, fn func()) {
	gen := s.sched.Generation()
	s.sched.After(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.sched.Generation() != gen {
			return
		}
		fn()
	})
}

func (s *Sequencer) refreshHints() {
	hints, changed := s.indicator.Update(s.steps[s.state.CurrentStep], s.state.GateOpen)
	if changed {
		s.observer.Hints(hints)
	}
}

// Package gate evaluates step completion. Each step names a predicate and
// the swaps and checklists that run before it; the evaluator dispatches on
// that table and never branches on step numbers itself.
package gate

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/AaronLay10/FoleySim/internal/compose"
	"github.com/AaronLay10/FoleySim/internal/disposal"
	"github.com/AaronLay10/FoleySim/internal/grab"
	"github.com/AaronLay10/FoleySim/internal/scene"
)

// ErrWrongStep rejects evaluation of a step that is not the active one.
var ErrWrongStep = errors.New("step is not active")

// Feedback is a learner-facing message.
type Feedback struct {
	Message string
	IsError bool
}

// TriggerKind says what caused an evaluation.
type TriggerKind int

const (
	TriggerManual TriggerKind = iota
	TriggerGrabEnd
	TriggerAction
	TriggerTick
)

// Trigger describes the input event behind an evaluation.
type Trigger struct {
	Kind   TriggerKind
	Object scene.ObjectID // released object for TriggerGrabEnd
}

// StepRules is the gating part of one step table entry.
type StepRules struct {
	Predicate   string           `yaml:"predicate"`
	OnGrabStart []scene.ObjectID `yaml:"on_grab_start"` // deploy outputs tried when a grab begins
	Deploy      []scene.ObjectID `yaml:"deploy"`
	Compose     []scene.ObjectID `yaml:"compose"` // tried in order
	Sweep       []string         `yaml:"sweep"`
	Success     string           `yaml:"success"`
	Failure     string           `yaml:"failure"`
}

// ChecklistDef declares a checklist and its per-item feedback.
type ChecklistDef struct {
	Name     string           `yaml:"name"`
	Target   scene.ObjectID   `yaml:"target"`
	Items    []scene.ObjectID `yaml:"items"`
	Consume  bool             `yaml:"consume"`
	Feedback string           `yaml:"feedback"`
	Cue      string           `yaml:"cue"`
	// Requires names a checklist that must mark a shared item first.
	Requires string `yaml:"requires"`
	// Waiting is shown when a released item reaches the target too early.
	Waiting string `yaml:"waiting"`
}

// Config is the rule set an Evaluator dispatches over.
type Config struct {
	Deploys    []compose.DeployRule
	Composes   []compose.Rule
	Checklists []ChecklistDef
	Conditions []Condition
	Tolerance  float64
}

// Outcome is the result of one evaluation.
type Outcome struct {
	Satisfied bool
	Feedback  []Feedback
	Cues      []string
	Deployed  []scene.ObjectID
	Composed  []scene.ObjectID
	Marked    []scene.ObjectID
}

// Evaluator runs step effects and predicates against the live scene.
type Evaluator struct {
	reg        *scene.Registry
	grabs      *grab.Tracker
	composer   *compose.Manager
	deploys    map[scene.ObjectID]compose.DeployRule
	composes   map[scene.ObjectID]compose.Rule
	checklists map[string]*disposal.Checklist
	defs       map[string]ChecklistDef
	predicates map[string]Predicate
	progress   *Progress
	used       *disposal.State
	disposed   *disposal.State
	log        zerolog.Logger
}

// New builds an evaluator. Checklists that consume their items share one
// disposal state; the others share a use state.
func New(cfg Config, reg *scene.Registry, grabs *grab.Tracker, composer *compose.Manager, log zerolog.Logger) (*Evaluator, error) {
	e := &Evaluator{
		reg:        reg,
		grabs:      grabs,
		composer:   composer,
		deploys:    make(map[scene.ObjectID]compose.DeployRule),
		composes:   make(map[scene.ObjectID]compose.Rule),
		checklists: make(map[string]*disposal.Checklist),
		defs:       make(map[string]ChecklistDef),
		predicates: map[string]Predicate{"always": Always},
		progress:   NewProgress(),
		used:       disposal.NewState(),
		disposed:   disposal.NewState(),
		log:        log.With().Str("component", "gate").Logger(),
	}
	for _, r := range cfg.Deploys {
		if _, dup := e.deploys[r.Output]; dup {
			return nil, fmt.Errorf("duplicate deploy rule for %s", r.Output)
		}
		e.deploys[r.Output] = r
	}
	for _, r := range cfg.Composes {
		if _, dup := e.composes[r.Output]; dup {
			return nil, fmt.Errorf("duplicate compose rule for %s", r.Output)
		}
		e.composes[r.Output] = r
	}
	for _, d := range cfg.Checklists {
		if _, dup := e.checklists[d.Name]; dup {
			return nil, fmt.Errorf("duplicate checklist %q", d.Name)
		}
		state := e.used
		if d.Consume {
			state = e.disposed
		}
		e.checklists[d.Name] = disposal.New(disposal.Config{
			Name:      d.Name,
			Target:    d.Target,
			Items:     d.Items,
			Consume:   d.Consume,
			Tolerance: cfg.Tolerance,
		}, state, reg, grabs, log)
		e.defs[d.Name] = d
	}
	for _, d := range cfg.Checklists {
		if d.Requires == "" {
			continue
		}
		prior, ok := e.checklists[d.Requires]
		if !ok {
			return nil, fmt.Errorf("checklist %q requires unknown checklist %q", d.Name, d.Requires)
		}
		if d.Requires == d.Name {
			return nil, fmt.Errorf("checklist %q requires itself", d.Name)
		}
		e.checklists[d.Name].After(prior)
	}
	for _, c := range cfg.Conditions {
		if _, dup := e.predicates[c.Name]; dup {
			return nil, fmt.Errorf("duplicate predicate %q", c.Name)
		}
		e.predicates[c.Name] = c.Predicate()
	}
	return e, nil
}

// Register adds a predicate implemented in code.
func (e *Evaluator) Register(name string, p Predicate) {
	e.predicates[name] = p
}

// Validate checks that every reference in rules resolves.
func (e *Evaluator) Validate(rules StepRules) error {
	if _, ok := e.predicates[rules.Predicate]; !ok {
		return fmt.Errorf("unknown predicate %q", rules.Predicate)
	}
	for _, id := range append(append([]scene.ObjectID(nil), rules.OnGrabStart...), rules.Deploy...) {
		if _, ok := e.deploys[id]; !ok {
			return fmt.Errorf("no deploy rule produces %s", id)
		}
	}
	for _, id := range rules.Compose {
		if _, ok := e.composes[id]; !ok {
			return fmt.Errorf("no compose rule produces %s", id)
		}
	}
	for _, name := range rules.Sweep {
		if _, ok := e.checklists[name]; !ok {
			return fmt.Errorf("unknown checklist %q", name)
		}
	}
	return nil
}

// Progress returns the action marks.
func (e *Evaluator) Progress() *Progress { return e.progress }

// Checklist returns a checklist by name.
func (e *Evaluator) Checklist(name string) (*disposal.Checklist, bool) {
	c, ok := e.checklists[name]
	return c, ok
}

// DeployRule returns the rule producing output.
func (e *Evaluator) DeployRule(output scene.ObjectID) (compose.DeployRule, bool) {
	r, ok := e.deploys[output]
	return r, ok
}

// Snapshot captures the read-only view passed to predicates.
func (e *Evaluator) Snapshot() Snapshot {
	return Snapshot{
		Registry:   e.reg,
		Grabs:      e.grabs,
		Produced:   e.composer.Done,
		Checklists: e.checklists,
		Progress:   e.progress,
	}
}

// Check runs only the step's predicate. A missing reference counts as not
// satisfied and is logged.
func (e *Evaluator) Check(step, active int, rules StepRules) (bool, error) {
	if step != active {
		return false, fmt.Errorf("%w: evaluate %d while %d is active", ErrWrongStep, step, active)
	}
	p, ok := e.predicates[rules.Predicate]
	if !ok {
		return false, fmt.Errorf("unknown predicate %q", rules.Predicate)
	}
	ok, err := p(e.Snapshot())
	if err != nil {
		var missing *scene.MissingReferenceError
		if errors.As(err, &missing) {
			e.log.Warn().Err(err).Int("step", step).Msg("predicate not satisfiable yet")
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// Evaluate runs the step's swaps and checklist sweeps, then its predicate.
// Swaps and checklist transitions are monotonic, so repeated calls with an
// unchanged scene produce the same Satisfied value and no new effects.
func (e *Evaluator) Evaluate(step, active int, rules StepRules, trig Trigger) (Outcome, error) {
	var out Outcome
	if step != active {
		return out, fmt.Errorf("%w: evaluate %d while %d is active", ErrWrongStep, step, active)
	}

	for _, id := range rules.Deploy {
		ok, err := e.composer.TryDeploy(e.deploys[id])
		if err != nil {
			e.logMissing(err, step, id)
			continue
		}
		if ok {
			out.Deployed = append(out.Deployed, id)
		}
	}
	for _, id := range rules.Compose {
		res, err := e.composer.TryCompose(e.composes[id])
		if err != nil {
			e.logMissing(err, step, id)
			continue
		}
		if res != nil {
			out.Composed = append(out.Composed, res.Output)
		}
	}
	for _, name := range rules.Sweep {
		def := e.defs[name]
		for _, id := range e.checklists[name].Sweep() {
			out.Marked = append(out.Marked, id)
			if def.Feedback != "" {
				out.Feedback = append(out.Feedback, Feedback{Message: def.Feedback})
			}
			if def.Cue != "" {
				out.Cues = append(out.Cues, def.Cue)
			}
		}
		if trig.Kind == TriggerGrabEnd && def.Waiting != "" && e.checklists[name].Waiting(trig.Object) {
			out.Feedback = append(out.Feedback, Feedback{Message: def.Waiting, IsError: true})
		}
	}

	ok, err := e.Check(step, active, rules)
	if err != nil {
		return out, err
	}
	out.Satisfied = ok

	if !ok && rules.Failure != "" && trig.Kind == TriggerGrabEnd && e.isDeployInput(rules, trig.Object) {
		out.Feedback = append(out.Feedback, Feedback{Message: rules.Failure, IsError: true})
	}
	return out, nil
}

// GrabStarted runs the step's grab-start swaps for the grabbed object.
func (e *Evaluator) GrabStarted(step, active int, rules StepRules, id scene.ObjectID) (Outcome, error) {
	var out Outcome
	if step != active {
		return out, fmt.Errorf("%w: grab-start on %d while %d is active", ErrWrongStep, step, active)
	}
	for _, output := range rules.OnGrabStart {
		rule := e.deploys[output]
		if rule.Input != id {
			continue
		}
		ok, err := e.composer.TryDeploy(rule)
		if err != nil {
			e.logMissing(err, step, output)
			continue
		}
		if ok {
			out.Deployed = append(out.Deployed, output)
		}
	}
	return out, nil
}

// Deploy applies one deploy rule directly. Explicit step actions use it.
func (e *Evaluator) Deploy(output scene.ObjectID) (bool, error) {
	rule, ok := e.deploys[output]
	if !ok {
		return false, fmt.Errorf("no deploy rule produces %s", output)
	}
	return e.composer.TryDeploy(rule)
}

func (e *Evaluator) isDeployInput(rules StepRules, id scene.ObjectID) bool {
	for _, output := range rules.Deploy {
		if e.deploys[output].Input == id {
			return true
		}
	}
	return false
}

func (e *Evaluator) logMissing(err error, step int, id scene.ObjectID) {
	e.log.Warn().Err(err).Int("step", step).Stringer("output", id).Msg("swap skipped")
}

// Package compose swaps discrete props for pre-built replacements. Every swap
// is one-directional: once an output is shown its inputs stay hidden for the
// rest of the play-through.
package compose

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"

	"github.com/AaronLay10/FoleySim/internal/grab"
	"github.com/AaronLay10/FoleySim/internal/scene"
	"github.com/AaronLay10/FoleySim/internal/spatial"
)

// DefaultErgonomicOffset shifts a composite handed back to a controller so
// it sits in the hand rather than inside it.
var DefaultErgonomicOffset = mgl64.Vec3{0, 0, -0.05}

// Rule replaces two overlapping inputs with one composite prop.
type Rule struct {
	Inputs [2]scene.ObjectID
	Output scene.ObjectID
	Offset mgl64.Vec3 // world-space shift applied to the anchor transform
}

// DeployRule replaces one input with a pre-positioned output. When Zone is
// set the input (and With, if set) must touch the zone first.
type DeployRule struct {
	Input    scene.ObjectID
	Output   scene.ObjectID
	Zone     scene.ObjectID
	With     scene.ObjectID
	UseProbe bool             // test the input's probe instead of its bounds
	Reveal   []scene.ObjectID // extra props shown alongside the output
}

// Result describes a completed composition.
type Result struct {
	Output scene.ObjectID
	Holder scene.ControllerID // empty when no input was held
	World  spatial.Pose
}

// Listener is notified once per completed swap.
type Listener func(output scene.ObjectID)

// Manager performs compositions and deployments against the registry.
type Manager struct {
	reg       *scene.Registry
	grabs     *grab.Tracker
	tolerance float64
	ergonomic mgl64.Vec3
	done      map[scene.ObjectID]bool
	listener  Listener
	log       zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithTolerance sets the overlap expansion.
func WithTolerance(t float64) Option {
	return func(m *Manager) { m.tolerance = t }
}

// WithErgonomicOffset sets the shift applied when a composite is handed
// back to a controller.
func WithErgonomicOffset(v mgl64.Vec3) Option {
	return func(m *Manager) { m.ergonomic = v }
}

// WithListener registers the completion callback.
func WithListener(fn Listener) Option {
	return func(m *Manager) { m.listener = fn }
}

// WithLogger sets the diagnostic logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a manager.
func NewManager(reg *scene.Registry, grabs *grab.Tracker, opts ...Option) *Manager {
	m := &Manager{
		reg:       reg,
		grabs:     grabs,
		tolerance: spatial.DefaultTolerance,
		ergonomic: DefaultErgonomicOffset,
		done:      make(map[scene.ObjectID]bool),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With().Str("component", "compose").Logger()
	return m
}

// Done reports whether output has already been produced.
func (m *Manager) Done(output scene.ObjectID) bool {
	return m.done[output]
}

// TryCompose applies rule if both inputs are visible, the rule has not
// fired yet and their expanded bounds intersect. A missing input is reported
// as a MissingReferenceError with nothing changed.
func (m *Manager) TryCompose(rule Rule) (*Result, error) {
	if m.done[rule.Output] {
		return nil, nil
	}
	if !m.reg.Has(rule.Output) {
		return nil, &scene.MissingReferenceError{ID: rule.Output}
	}

	var bounds [2]spatial.Box
	for i, id := range rule.Inputs {
		obj, err := m.reg.Get(id)
		if err != nil {
			return nil, err
		}
		if !obj.Visible {
			return nil, nil
		}
		bounds[i] = obj.Bounds
	}
	if !spatial.Touches(bounds[0], bounds[1], m.tolerance) {
		return nil, nil
	}

	anchor := rule.Inputs[0]
	var holder scene.ControllerID
	for _, id := range rule.Inputs {
		if cid, ok := m.grabs.HolderOf(id); ok {
			anchor, holder = id, cid
			break
		}
	}
	world, err := m.reg.WorldTransform(anchor)
	if err != nil {
		return nil, err
	}

	// release ownership before hiding so no session points at a hidden prop
	for _, id := range rule.Inputs {
		m.grabs.Release(id)
	}
	for _, id := range rule.Inputs {
		if err := m.reg.Retire(id); err != nil {
			return nil, err
		}
	}

	outWorld := spatial.PoseFromMat4(world).Translated(rule.Offset)
	if err := m.reg.Place(rule.Output, outWorld.Mat4()); err != nil {
		return nil, err
	}
	if err := m.reg.SetVisible(rule.Output, true); err != nil {
		return nil, err
	}
	if err := m.reg.SetGrabbable(rule.Output, true); err != nil {
		return nil, err
	}
	if holder != "" {
		if err := m.grabs.Handover(holder, rule.Output, m.ergonomic); err != nil {
			return nil, fmt.Errorf("hand composite to %s: %w", holder, err)
		}
	}
	m.done[rule.Output] = true

	final, _ := m.reg.Get(rule.Output)
	m.log.Info().
		Stringer("output", rule.Output).
		Stringer("a", rule.Inputs[0]).
		Stringer("b", rule.Inputs[1]).
		Str("holder", string(holder)).
		Msg("composed")
	if m.listener != nil {
		m.listener(rule.Output)
	}
	return &Result{Output: rule.Output, Holder: holder, World: final.World}, nil
}

// TryDeploy applies rule if the input is still visible, the output has not
// been deployed and the zone condition holds. It reports whether the swap
// happened on this call.
func (m *Manager) TryDeploy(rule DeployRule) (bool, error) {
	if m.done[rule.Output] {
		return false, nil
	}
	if !m.reg.Has(rule.Output) {
		return false, &scene.MissingReferenceError{ID: rule.Output}
	}
	input, err := m.reg.Get(rule.Input)
	if err != nil {
		return false, err
	}
	if !input.Visible {
		return false, nil
	}

	if rule.Zone != scene.NoObject {
		ok, err := m.inZone(rule.Input, rule.Zone, rule.UseProbe)
		if err != nil || !ok {
			return false, err
		}
		if rule.With != scene.NoObject {
			ok, err := m.inZone(rule.With, rule.Zone, false)
			if err != nil || !ok {
				return false, err
			}
		}
	}

	m.grabs.Release(rule.Input)
	if err := m.reg.Retire(rule.Input); err != nil {
		return false, err
	}
	if err := m.reg.SetVisible(rule.Output, true); err != nil {
		return false, err
	}
	for _, id := range rule.Reveal {
		if err := m.reg.SetVisible(id, true); err != nil {
			m.log.Warn().Err(err).Stringer("object", id).Msg("reveal failed")
		}
	}
	m.done[rule.Output] = true

	m.log.Info().Stringer("input", rule.Input).Stringer("output", rule.Output).Msg("deployed")
	if m.listener != nil {
		m.listener(rule.Output)
	}
	return true, nil
}

// Reveal shows a prop a step introduces. Retired props stay hidden and
// yield scene.RetiredError.
func (m *Manager) Reveal(id scene.ObjectID) error {
	return m.reg.SetVisible(id, true)
}

// AllowGrab lets grab-start attach id from now on.
func (m *Manager) AllowGrab(id scene.ObjectID) error {
	return m.reg.SetGrabbable(id, true)
}

func (m *Manager) inZone(id, zone scene.ObjectID, probe bool) (bool, error) {
	obj, err := m.reg.Get(id)
	if err != nil {
		return false, err
	}
	if !obj.Visible {
		return false, nil
	}
	var box spatial.Box
	if probe {
		box, err = m.reg.ProbeBounds(id)
	} else {
		box, err = m.reg.WorldBounds(id)
	}
	if err != nil {
		return false, err
	}
	zoneBox, err := m.reg.WorldBounds(zone)
	if err != nil {
		return false, err
	}
	return spatial.Touches(box, zoneBox, m.tolerance), nil
}

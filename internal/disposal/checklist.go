// Package disposal tracks fixed sets of items that must each reach a target
// volume once, such as the trash receptacle or the cleaning site.
package disposal

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/AaronLay10/FoleySim/internal/grab"
	"github.com/AaronLay10/FoleySim/internal/scene"
	"github.com/AaronLay10/FoleySim/internal/spatial"
)

// State holds monotonic per-item flags for one play-through. Several
// checklists may share a State so progress made in one step carries into a
// later one. Flags are only ever set by a Checklist.
type State struct {
	flags map[scene.ObjectID]bool
}

// NewState creates an empty state.
func NewState() *State {
	return &State{flags: make(map[scene.ObjectID]bool)}
}

// Done reports whether id has been marked.
func (s *State) Done(id scene.ObjectID) bool {
	return s.flags[id]
}

// Marked returns every marked id in order.
func (s *State) Marked() []scene.ObjectID {
	out := make([]scene.ObjectID, 0, len(s.flags))
	for id := range s.flags {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *State) mark(id scene.ObjectID) bool {
	if s.flags[id] {
		return false
	}
	s.flags[id] = true
	return true
}

// Checklist is a conjunction over a fixed list of items.
type Checklist struct {
	Name      string
	target    scene.ObjectID
	items     []scene.ObjectID
	consume   bool
	state     *State
	reg       *scene.Registry
	grabs     *grab.Tracker
	tolerance float64
	requires  *Checklist
	log       zerolog.Logger
}

// Config describes a checklist.
type Config struct {
	Name      string
	Target    scene.ObjectID
	Items     []scene.ObjectID
	Consume   bool // hide items once they reach the target
	Tolerance float64
}

// New creates a checklist over state.
func New(cfg Config, state *State, reg *scene.Registry, grabs *grab.Tracker, log zerolog.Logger) *Checklist {
	tol := cfg.Tolerance
	if tol <= 0 {
		tol = spatial.DefaultTolerance
	}
	return &Checklist{
		Name:      cfg.Name,
		target:    cfg.Target,
		items:     append([]scene.ObjectID(nil), cfg.Items...),
		consume:   cfg.Consume,
		state:     state,
		reg:       reg,
		grabs:     grabs,
		tolerance: tol,
		log:       log.With().Str("checklist", cfg.Name).Logger(),
	}
}

// After makes items that prior also tracks wait until prior has marked
// them. A waiting item is left where it is, visible and grabbable.
func (c *Checklist) After(prior *Checklist) {
	c.requires = prior
}

// Items returns the tracked ids.
func (c *Checklist) Items() []scene.ObjectID {
	return append([]scene.ObjectID(nil), c.items...)
}

// MarkIfDisposed tests id against the target. On the first success it sets
// the item's flag, hides the item when the checklist consumes, and returns
// true. Later calls for the same item return false, as do calls for an
// item still waiting on the prerequisite checklist.
func (c *Checklist) MarkIfDisposed(id scene.ObjectID) (bool, error) {
	if c.state.Done(id) || !c.tracks(id) {
		return false, nil
	}
	touching, err := c.touching(id)
	if err != nil || !touching {
		return false, err
	}
	if c.blocked(id) {
		return false, nil
	}

	c.state.mark(id)
	if c.consume {
		c.grabs.Release(id)
		if err := c.reg.Retire(id); err != nil {
			c.log.Warn().Err(err).Stringer("item", id).Msg("retire failed")
		}
	}
	c.log.Info().Stringer("item", id).Msg("item marked")
	return true, nil
}

// Waiting reports whether id is at the target but cannot be marked until
// the prerequisite checklist marks it.
func (c *Checklist) Waiting(id scene.ObjectID) bool {
	if c.state.Done(id) || !c.tracks(id) || !c.blocked(id) {
		return false
	}
	touching, err := c.touching(id)
	return err == nil && touching
}

func (c *Checklist) blocked(id scene.ObjectID) bool {
	return c.requires != nil && c.requires.Tracks(id) && !c.requires.Done(id)
}

func (c *Checklist) touching(id scene.ObjectID) (bool, error) {
	obj, err := c.reg.Get(id)
	if err != nil {
		return false, err
	}
	if !obj.Visible {
		return false, nil
	}
	target, err := c.reg.WorldBounds(c.target)
	if err != nil {
		return false, err
	}
	return spatial.Touches(obj.Bounds, target, c.tolerance), nil
}

// Sweep runs MarkIfDisposed over every tracked item and returns the items
// that transitioned on this call. Missing references are logged and skipped.
func (c *Checklist) Sweep() []scene.ObjectID {
	var fresh []scene.ObjectID
	for _, id := range c.items {
		first, err := c.MarkIfDisposed(id)
		if err != nil {
			c.log.Debug().Err(err).Stringer("item", id).Msg("item not testable")
			continue
		}
		if first {
			fresh = append(fresh, id)
		}
	}
	return fresh
}

// IsComplete is true iff every tracked item has been marked.
func (c *Checklist) IsComplete() bool {
	for _, id := range c.items {
		if !c.state.Done(id) {
			return false
		}
	}
	return true
}

// Remaining returns the tracked items not yet marked.
func (c *Checklist) Remaining() []scene.ObjectID {
	var out []scene.ObjectID
	for _, id := range c.items {
		if !c.state.Done(id) {
			out = append(out, id)
		}
	}
	return out
}

// Tracks reports whether id is on the list.
func (c *Checklist) Tracks(id scene.ObjectID) bool {
	return c.tracks(id)
}

// Done reports whether a tracked item has been marked.
func (c *Checklist) Done(id scene.ObjectID) bool {
	return c.tracks(id) && c.state.Done(id)
}

func (c *Checklist) tracks(id scene.ObjectID) bool {
	for _, item := range c.items {
		if item == id {
			return true
		}
	}
	return false
}

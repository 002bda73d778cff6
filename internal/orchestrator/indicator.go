package orchestrator

import (
	"github.com/AaronLay10/FoleySim/internal/gate"
	"github.com/AaronLay10/FoleySim/internal/scene"
)

// IndicatorController decides which props carry a visual hint. It only
// reads state and has no say in gating.
type IndicatorController struct {
	reg     *scene.Registry
	eval    *gate.Evaluator
	current []scene.ObjectID
}

// NewIndicatorController creates a controller with no hints.
func NewIndicatorController(reg *scene.Registry, eval *gate.Evaluator) *IndicatorController {
	return &IndicatorController{reg: reg, eval: eval}
}

// Current returns the hint set last computed.
func (c *IndicatorController) Current() []scene.ObjectID {
	return append([]scene.ObjectID(nil), c.current...)
}

// Update recomputes hints for step. A tool is hinted while the gate is
// closed, the tool is visible, and some checklist of the step still waits
// on it. Markers are hinted while the gate is closed. It reports whether
// the set changed.
func (c *IndicatorController) Update(step Step, gateOpen bool) ([]scene.ObjectID, bool) {
	var hints []scene.ObjectID
	if !gateOpen {
		for _, id := range step.Tools {
			if c.reg.Visible(id) && !c.satisfied(step, id) {
				hints = append(hints, id)
			}
		}
		for _, id := range step.Markers {
			if c.reg.Has(id) {
				hints = append(hints, id)
			}
		}
	}
	changed := !equalIDs(hints, c.current)
	c.current = hints
	return c.Current(), changed
}

// Clear drops every hint.
func (c *IndicatorController) Clear() bool {
	changed := len(c.current) > 0
	c.current = nil
	return changed
}

func (c *IndicatorController) satisfied(step Step, id scene.ObjectID) bool {
	tracked := false
	for _, name := range step.Sweep {
		cl, ok := c.eval.Checklist(name)
		if !ok || !cl.Tracks(id) {
			continue
		}
		tracked = true
		if !cl.Done(id) {
			return false
		}
	}
	return tracked
}

func equalIDs(a, b []scene.ObjectID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

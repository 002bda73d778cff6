package gate

import (
	"fmt"

	"github.com/AaronLay10/FoleySim/internal/disposal"
	"github.com/AaronLay10/FoleySim/internal/grab"
	"github.com/AaronLay10/FoleySim/internal/scene"
)

// Progress holds monotonic named marks recorded by explicit step actions.
type Progress struct {
	marks map[string]bool
}

// NewProgress creates an empty progress set.
func NewProgress() *Progress {
	return &Progress{marks: make(map[string]bool)}
}

// Set records name and reports whether it was newly set.
func (p *Progress) Set(name string) bool {
	if p.marks[name] {
		return false
	}
	p.marks[name] = true
	return true
}

// Has reports whether name was recorded.
func (p *Progress) Has(name string) bool {
	return p.marks[name]
}

// Snapshot is everything a predicate may read. Predicates receive it by
// value and must not mutate what it points to.
type Snapshot struct {
	Registry   *scene.Registry
	Grabs      *grab.Tracker
	Produced   func(scene.ObjectID) bool
	Checklists map[string]*disposal.Checklist
	Progress   *Progress
}

// Predicate reports whether a step's physical goal has been achieved.
type Predicate func(s Snapshot) (bool, error)

// Condition is the declarative form of a predicate: a conjunction over
// produced swaps, complete checklists, recorded marks and visible props.
type Condition struct {
	Name       string           `yaml:"name"`
	Produced   []scene.ObjectID `yaml:"produced"`
	Checklists []string         `yaml:"checklists"`
	Marks      []string         `yaml:"marks"`
	Visible    []scene.ObjectID `yaml:"visible"`
}

// Predicate compiles the condition.
func (c Condition) Predicate() Predicate {
	return func(s Snapshot) (bool, error) {
		for _, id := range c.Produced {
			if s.Produced == nil || !s.Produced(id) {
				return false, nil
			}
		}
		for _, name := range c.Checklists {
			cl, ok := s.Checklists[name]
			if !ok {
				return false, fmt.Errorf("condition %s: unknown checklist %q", c.Name, name)
			}
			if !cl.IsComplete() {
				return false, nil
			}
		}
		for _, m := range c.Marks {
			if !s.Progress.Has(m) {
				return false, nil
			}
		}
		for _, id := range c.Visible {
			obj, err := s.Registry.Get(id)
			if err != nil {
				return false, err
			}
			if !obj.Visible {
				return false, nil
			}
		}
		return true, nil
	}
}

// Always is the predicate of a terminal step.
func Always(Snapshot) (bool, error) { return true, nil }

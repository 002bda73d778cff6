package orchestrator

import (
	"github.com/AaronLay10/FoleySim/internal/gate"
	"github.com/AaronLay10/FoleySim/internal/scene"
)

// Procedure is the top-level document loaded from YAML. It declares the
// scene layout, the swap rules, the checklists and the ordered step table.
type Procedure struct {
	Version         int                 `yaml:"version"`
	Name            string              `yaml:"name"`
	Tolerance       float64             `yaml:"tolerance_m"`
	ErgonomicOffset []float64           `yaml:"ergonomic_offset"`
	Objects         []ObjectDef         `yaml:"objects"`
	Deploys         []DeployDef         `yaml:"deploys"`
	Composes        []ComposeDef        `yaml:"composes"`
	Checklists      []gate.ChecklistDef `yaml:"checklists"`
	Predicates      []gate.Condition    `yaml:"predicates"`
	Steps           []Step              `yaml:"steps"`
}

// ObjectDef places one interactable or zone.
type ObjectDef struct {
	ID          scene.ObjectID `yaml:"id"`
	Category    scene.Category `yaml:"category"`
	Position    []float64      `yaml:"position"`
	RotationDeg []float64      `yaml:"rotation_deg,omitempty"` // XYZ euler
	Size        []float64      `yaml:"size"`
	Probe       *ProbeDef      `yaml:"probe,omitempty"`
	Visible     bool           `yaml:"visible"`
	Grabbable   bool           `yaml:"grabbable"`
}

// ProbeDef is a functional sub-volume in object-local space.
type ProbeDef struct {
	Center []float64 `yaml:"center"`
	Size   []float64 `yaml:"size"`
}

// DeployDef is the file form of compose.DeployRule.
type DeployDef struct {
	Input    scene.ObjectID   `yaml:"input"`
	Output   scene.ObjectID   `yaml:"output"`
	Zone     scene.ObjectID   `yaml:"zone,omitempty"`
	With     scene.ObjectID   `yaml:"with,omitempty"`
	UseProbe bool             `yaml:"use_probe,omitempty"`
	Reveal   []scene.ObjectID `yaml:"reveal,omitempty"`
}

// ComposeDef is the file form of compose.Rule.
type ComposeDef struct {
	Inputs []scene.ObjectID `yaml:"inputs"`
	Output scene.ObjectID   `yaml:"output"`
	Offset []float64        `yaml:"offset,omitempty"`
}

// Step is one immutable entry of the step table.
type Step struct {
	Ordinal      int              `yaml:"-"`
	Prompt       string           `yaml:"prompt"`
	Tools        []scene.ObjectID `yaml:"tools"`
	Terminal     bool             `yaml:"terminal"`
	Skippable    bool             `yaml:"skippable"`
	Poll         bool             `yaml:"poll"`
	Action       string           `yaml:"action,omitempty"`
	ActionDeploy scene.ObjectID   `yaml:"action_deploy,omitempty"`
	Reveal       []scene.ObjectID `yaml:"reveal,omitempty"`
	Grabbable    []scene.ObjectID `yaml:"grabbable,omitempty"`
	Markers      []scene.ObjectID `yaml:"markers,omitempty"`
	Narration    string           `yaml:"narration,omitempty"`
	Video        string           `yaml:"video,omitempty"`

	gate.StepRules `yaml:",inline"`
}

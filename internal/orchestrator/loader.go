package orchestrator

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/FoleySim/internal/compose"
	"github.com/AaronLay10/FoleySim/internal/gate"
	"github.com/AaronLay10/FoleySim/internal/scene"
	"github.com/AaronLay10/FoleySim/internal/spatial"
)

//go:embed default_procedure.yaml
var defaultProcedure []byte

// LoadProcedure loads a procedure from a YAML file.
func LoadProcedure(path string) (*Procedure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read procedure file: %w", err)
	}
	return ParseProcedure(data)
}

// DefaultProcedure returns the built-in Foley catheterisation procedure.
func DefaultProcedure() (*Procedure, error) {
	return ParseProcedure(defaultProcedure)
}

// ParseProcedure decodes and validates a procedure document.
func ParseProcedure(data []byte) (*Procedure, error) {
	var p Procedure
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse procedure YAML: %w", err)
	}
	if p.Version != 1 {
		return nil, fmt.Errorf("unsupported procedure version: %d", p.Version)
	}
	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("procedure has no steps")
	}

	for i := range p.Steps {
		s := &p.Steps[i]
		s.Ordinal = i
		if s.Narration == "" {
			s.Narration = fmt.Sprintf("voiceOvers/step_%d.mp3", i+1)
		}
		if s.Terminal && s.Predicate == "" {
			s.Predicate = "always"
		}
		if s.Predicate == "" {
			return nil, fmt.Errorf("step %d: missing predicate", i)
		}
		if s.Terminal && i != len(p.Steps)-1 {
			return nil, fmt.Errorf("step %d: only the last step may be terminal", i)
		}
	}
	if !p.Steps[len(p.Steps)-1].Terminal {
		return nil, fmt.Errorf("last step must be terminal")
	}

	seen := make(map[scene.ObjectID]bool, len(p.Objects))
	for _, o := range p.Objects {
		if !o.ID.Valid() {
			return nil, fmt.Errorf("object with invalid id")
		}
		if seen[o.ID] {
			return nil, fmt.Errorf("object %s declared twice", o.ID)
		}
		seen[o.ID] = true
	}
	return &p, nil
}

// ObjectSpecs converts the declared layout into registry specs.
func (p *Procedure) ObjectSpecs() ([]scene.Spec, error) {
	specs := make([]scene.Spec, 0, len(p.Objects))
	for _, o := range p.Objects {
		pos, err := vec3(o.Position, "position")
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", o.ID, err)
		}
		size, err := vec3(o.Size, "size")
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", o.ID, err)
		}
		rot := mgl64.QuatIdent()
		if len(o.RotationDeg) > 0 {
			deg, err := vec3(o.RotationDeg, "rotation_deg")
			if err != nil {
				return nil, fmt.Errorf("object %s: %w", o.ID, err)
			}
			rot = mgl64.AnglesToQuat(mgl64.DegToRad(deg[0]), mgl64.DegToRad(deg[1]), mgl64.DegToRad(deg[2]), mgl64.XYZ)
		}
		spec := scene.Spec{
			ID:        o.ID,
			Category:  o.Category,
			Pose:      spatial.Pose{Position: pos, Rotation: rot},
			Extents:   spatial.BoxFromCenter(mgl64.Vec3{}, size),
			Visible:   o.Visible,
			Grabbable: o.Grabbable,
		}
		if o.Probe != nil {
			c, err := vec3(o.Probe.Center, "probe.center")
			if err != nil {
				return nil, fmt.Errorf("object %s: %w", o.ID, err)
			}
			s, err := vec3(o.Probe.Size, "probe.size")
			if err != nil {
				return nil, fmt.Errorf("object %s: %w", o.ID, err)
			}
			probe := spatial.BoxFromCenter(c, s)
			spec.Probe = &probe
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// GateConfig converts the rule sections into evaluator configuration.
func (p *Procedure) GateConfig() (gate.Config, error) {
	cfg := gate.Config{
		Checklists: p.Checklists,
		Conditions: p.Predicates,
		Tolerance:  p.Tolerance,
	}
	for _, d := range p.Deploys {
		cfg.Deploys = append(cfg.Deploys, compose.DeployRule{
			Input:    d.Input,
			Output:   d.Output,
			Zone:     d.Zone,
			With:     d.With,
			UseProbe: d.UseProbe,
			Reveal:   d.Reveal,
		})
	}
	for _, c := range p.Composes {
		if len(c.Inputs) != 2 {
			return cfg, fmt.Errorf("compose %s: need exactly 2 inputs, got %d", c.Output, len(c.Inputs))
		}
		rule := compose.Rule{Inputs: [2]scene.ObjectID{c.Inputs[0], c.Inputs[1]}, Output: c.Output}
		if len(c.Offset) > 0 {
			off, err := vec3(c.Offset, "offset")
			if err != nil {
				return cfg, fmt.Errorf("compose %s: %w", c.Output, err)
			}
			rule.Offset = off
		}
		cfg.Composes = append(cfg.Composes, rule)
	}
	return cfg, nil
}

// ComposeOptions returns manager options derived from the document.
func (p *Procedure) ComposeOptions() ([]compose.Option, error) {
	var opts []compose.Option
	if p.Tolerance > 0 {
		opts = append(opts, compose.WithTolerance(p.Tolerance))
	}
	if len(p.ErgonomicOffset) > 0 {
		off, err := vec3(p.ErgonomicOffset, "ergonomic_offset")
		if err != nil {
			return nil, err
		}
		opts = append(opts, compose.WithErgonomicOffset(off))
	}
	return opts, nil
}

func vec3(v []float64, field string) (mgl64.Vec3, error) {
	if len(v) != 3 {
		return mgl64.Vec3{}, fmt.Errorf("%s: want 3 components, got %d", field, len(v))
	}
	return mgl64.Vec3{v[0], v[1], v[2]}, nil
}

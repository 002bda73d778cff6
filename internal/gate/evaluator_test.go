package gate

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/FoleySim/internal/compose"
	"github.com/AaronLay10/FoleySim/internal/grab"
	"github.com/AaronLay10/FoleySim/internal/scene"
	"github.com/AaronLay10/FoleySim/internal/spatial"
)

var small = spatial.BoxFromCenter(mgl64.Vec3{}, mgl64.Vec3{0.1, 0.05, 0.05})

func newEvaluator(t *testing.T) (*Evaluator, *scene.Registry, *grab.Tracker) {
	t.Helper()
	reg := scene.NewRegistry()
	for _, s := range []scene.Spec{
		{ID: scene.Lubricant, Category: scene.CategoryKit, Pose: spatial.PoseAt(mgl64.Vec3{0, 0.85, 0}), Extents: small, Visible: true, Grabbable: true},
		{ID: scene.Catheter, Category: scene.CategoryKit, Pose: spatial.PoseAt(mgl64.Vec3{0.3, 0.85, 0}), Extents: small, Visible: true, Grabbable: true},
		{ID: scene.DeployedLubricant, Category: scene.CategoryDeployed, Pose: spatial.PoseAt(mgl64.Vec3{1, 0, 0}), Extents: small},
		{ID: scene.LubricationZone, Category: scene.CategoryEnvironment, Pose: spatial.PoseAt(mgl64.Vec3{0, 1.2, 0}), Extents: spatial.BoxFromCenter(mgl64.Vec3{}, mgl64.Vec3{1, 0.3, 1})},
		{ID: scene.Swab1, Category: scene.CategoryKit, Pose: spatial.PoseAt(mgl64.Vec3{-1, 0.85, 0}), Extents: small, Visible: true, Grabbable: true},
		{ID: scene.CleaningZone, Category: scene.CategoryEnvironment, Pose: spatial.PoseAt(mgl64.Vec3{-2, 1, 0}), Extents: spatial.BoxFromCenter(mgl64.Vec3{}, mgl64.Vec3{0.05, 0.05, 0.05})},
	} {
		require.NoError(t, reg.Register(s))
	}
	grabs := grab.NewTracker(reg, zerolog.Nop())
	composer := compose.NewManager(reg, grabs)
	e, err := New(Config{
		Deploys: []compose.DeployRule{{
			Input:  scene.Lubricant,
			Output: scene.DeployedLubricant,
			Zone:   scene.LubricationZone,
			With:   scene.Catheter,
		}},
		Checklists: []ChecklistDef{{
			Name:     "cleaning",
			Target:   scene.CleaningZone,
			Items:    []scene.ObjectID{scene.Swab1},
			Feedback: "Swabsticks is successfully used.",
		}},
		Conditions: []Condition{
			{Name: "lubricated", Produced: []scene.ObjectID{scene.DeployedLubricant}},
			{Name: "cleaned", Checklists: []string{"cleaning"}},
			{Name: "urine_shown", Visible: []scene.ObjectID{scene.UrineStage}},
		},
	}, reg, grabs, composer, zerolog.Nop())
	require.NoError(t, err)
	return e, reg, grabs
}

var lubricate = StepRules{
	Predicate: "lubricated",
	Deploy:    []scene.ObjectID{scene.DeployedLubricant},
	Failure:   "Try again",
}

func TestEvaluateSatisfiedOnceWithoutReplayingEffects(t *testing.T) {
	e, reg, _ := newEvaluator(t)
	require.NoError(t, reg.Place(scene.Lubricant, mgl64.Translate3D(0, 1.1, 0)))
	require.NoError(t, reg.Place(scene.Catheter, mgl64.Translate3D(0.2, 1.1, 0)))

	first, err := e.Evaluate(4, 4, lubricate, Trigger{Kind: TriggerManual})
	require.NoError(t, err)
	assert.True(t, first.Satisfied)
	assert.Equal(t, []scene.ObjectID{scene.DeployedLubricant}, first.Deployed)

	second, err := e.Evaluate(4, 4, lubricate, Trigger{Kind: TriggerManual})
	require.NoError(t, err)
	assert.True(t, second.Satisfied)
	assert.Empty(t, second.Deployed)
	assert.Empty(t, second.Feedback)
}

func TestEvaluateRejectsInactiveStep(t *testing.T) {
	e, _, _ := newEvaluator(t)
	_, err := e.Evaluate(5, 4, lubricate, Trigger{})
	assert.True(t, errors.Is(err, ErrWrongStep))
	_, err = e.Check(3, 4, lubricate)
	assert.True(t, errors.Is(err, ErrWrongStep))
}

func TestFailureFeedbackOnlyForReleasedInput(t *testing.T) {
	e, _, _ := newEvaluator(t)

	out, err := e.Evaluate(4, 4, lubricate, Trigger{Kind: TriggerGrabEnd, Object: scene.Lubricant})
	require.NoError(t, err)
	assert.False(t, out.Satisfied)
	require.Len(t, out.Feedback, 1)
	assert.True(t, out.Feedback[0].IsError)

	out, err = e.Evaluate(4, 4, lubricate, Trigger{Kind: TriggerGrabEnd, Object: scene.Swab1})
	require.NoError(t, err)
	assert.Empty(t, out.Feedback)
}

func TestChecklistFeedbackFiresOncePerItem(t *testing.T) {
	e, reg, _ := newEvaluator(t)
	rules := StepRules{Predicate: "cleaned", Sweep: []string{"cleaning"}}

	require.NoError(t, reg.Place(scene.Swab1, mgl64.Translate3D(-2, 1, 0)))
	out, err := e.Evaluate(3, 3, rules, Trigger{Kind: TriggerTick})
	require.NoError(t, err)
	assert.True(t, out.Satisfied)
	assert.Len(t, out.Feedback, 1)

	out, err = e.Evaluate(3, 3, rules, Trigger{Kind: TriggerTick})
	require.NoError(t, err)
	assert.True(t, out.Satisfied)
	assert.Empty(t, out.Feedback)
	assert.True(t, reg.Visible(scene.Swab1), "use checklists keep items")
}

func TestMissingReferenceKeepsGateClosed(t *testing.T) {
	e, _, _ := newEvaluator(t)
	ok, err := e.Check(6, 6, StepRules{Predicate: "urine_shown"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateReportsUnknownReferences(t *testing.T) {
	e, _, _ := newEvaluator(t)
	assert.NoError(t, e.Validate(lubricate))
	assert.Error(t, e.Validate(StepRules{Predicate: "nope"}))
	assert.Error(t, e.Validate(StepRules{Predicate: "always", Compose: []scene.ObjectID{scene.CatheterSyringe}}))
	assert.Error(t, e.Validate(StepRules{Predicate: "always", Sweep: []string{"trash"}}))
}

func TestChecklistRequiresUnknownChecklist(t *testing.T) {
	reg := scene.NewRegistry()
	grabs := grab.NewTracker(reg, zerolog.Nop())
	_, err := New(Config{Checklists: []ChecklistDef{
		{Name: "trash", Target: scene.Trashcan, Items: []scene.ObjectID{scene.Swab1}, Consume: true, Requires: "cleaning"},
	}}, reg, grabs, compose.NewManager(reg, grabs), zerolog.Nop())
	assert.Error(t, err)
}

func TestWaitingFeedbackOnlyOnRelease(t *testing.T) {
	reg := scene.NewRegistry()
	for _, s := range []scene.Spec{
		{ID: scene.Swab1, Category: scene.CategoryKit, Pose: spatial.PoseAt(mgl64.Vec3{3, 0.5, 0}), Extents: small, Visible: true, Grabbable: true},
		{ID: scene.CleaningZone, Category: scene.CategoryEnvironment, Pose: spatial.PoseAt(mgl64.Vec3{-2, 1, 0}), Extents: spatial.BoxFromCenter(mgl64.Vec3{}, mgl64.Vec3{0.05, 0.05, 0.05})},
		{ID: scene.Trashcan, Category: scene.CategoryEnvironment, Pose: spatial.PoseAt(mgl64.Vec3{3, 0.3, 0}), Extents: spatial.BoxFromCenter(mgl64.Vec3{}, mgl64.Vec3{0.4, 0.6, 0.4}), Visible: true},
	} {
		require.NoError(t, reg.Register(s))
	}
	grabs := grab.NewTracker(reg, zerolog.Nop())
	e, err := New(Config{
		Checklists: []ChecklistDef{
			{Name: "trash", Target: scene.Trashcan, Items: []scene.ObjectID{scene.Swab1}, Consume: true, Requires: "cleaning", Waiting: "Use it first"},
			{Name: "cleaning", Target: scene.CleaningZone, Items: []scene.ObjectID{scene.Swab1}},
		},
		Conditions: []Condition{{Name: "cleaned", Checklists: []string{"cleaning", "trash"}}},
	}, reg, grabs, compose.NewManager(reg, grabs), zerolog.Nop())
	require.NoError(t, err)
	rules := StepRules{Predicate: "cleaned", Sweep: []string{"cleaning", "trash"}}

	out, err := e.Evaluate(3, 3, rules, Trigger{Kind: TriggerGrabEnd, Object: scene.Swab1})
	require.NoError(t, err)
	assert.False(t, out.Satisfied)
	assert.Empty(t, out.Marked)
	assert.Equal(t, []Feedback{{Message: "Use it first", IsError: true}}, out.Feedback)
	assert.True(t, reg.Visible(scene.Swab1))

	out, err = e.Evaluate(3, 3, rules, Trigger{Kind: TriggerTick})
	require.NoError(t, err)
	assert.Empty(t, out.Feedback)

	require.NoError(t, reg.Place(scene.Swab1, mgl64.Translate3D(-2, 1, 0)))
	_, err = e.Evaluate(3, 3, rules, Trigger{Kind: TriggerGrabEnd, Object: scene.Swab1})
	require.NoError(t, err)
	require.NoError(t, reg.Place(scene.Swab1, mgl64.Translate3D(3, 0.5, 0)))
	out, err = e.Evaluate(3, 3, rules, Trigger{Kind: TriggerGrabEnd, Object: scene.Swab1})
	require.NoError(t, err)
	assert.True(t, out.Satisfied)
	assert.False(t, reg.Visible(scene.Swab1))
}

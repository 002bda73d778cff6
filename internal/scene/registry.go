// Package scene holds the interactable registry: every prop the learner can
// grab or that takes part in gating, plus the input controller frames that
// held props are parented to.
package scene

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/AaronLay10/FoleySim/internal/spatial"
)

// Category groups props by where they come from.
type Category string

const (
	CategoryKit         Category = "kit"
	CategoryDeployed    Category = "deployed"
	CategoryEnvironment Category = "environment"
	CategoryCombined    Category = "combined"
)

// ControllerID identifies a physical input controller (hand).
type ControllerID string

// MissingReferenceError is returned when an id is not in the registry,
// either because its asset has not loaded yet or it was never declared.
type MissingReferenceError struct {
	ID ObjectID
}

func (e *MissingReferenceError) Error() string {
	return "missing reference: " + e.ID.String()
}

// RetiredError is returned when something tries to show a permanently
// hidden object.
type RetiredError struct {
	ID ObjectID
}

func (e *RetiredError) Error() string {
	return "object retired: " + e.ID.String()
}

// Spec describes an object at registration time.
type Spec struct {
	ID        ObjectID
	Category  Category
	Pose      spatial.Pose
	Extents   spatial.Box  // local-space bounds
	Probe     *spatial.Box // local-space functional tip, optional
	Visible   bool
	Grabbable bool
}

// Object is a read-only view of a registered prop.
type Object struct {
	ID        ObjectID
	Category  Category
	Visible   bool
	Grabbable bool
	Retired   bool
	Owner     ControllerID // empty when not held
	World     spatial.Pose
	Bounds    spatial.Box
}

// ChangeFunc is invoked after an object's visibility changes.
type ChangeFunc func(id ObjectID, visible bool)

type object struct {
	spec    Spec
	visible bool
	grab    bool
	retired bool
	owner   ControllerID
	local   mgl64.Mat4 // relative to owner frame, or world when unowned
}

// Registry maintains the set of loaded interactables indexed by logical id.
type Registry struct {
	mu          sync.RWMutex
	objects     map[ObjectID]*object
	controllers map[ControllerID]mgl64.Mat4
	onChange    ChangeFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		objects:     make(map[ObjectID]*object),
		controllers: make(map[ControllerID]mgl64.Mat4),
	}
}

// OnChange sets the visibility listener. The listener runs without the
// registry lock held.
func (r *Registry) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Register adds an object once its asset has loaded. Registering an id twice
// replaces the earlier spec but keeps retirement.
func (r *Registry) Register(spec Spec) error {
	if !spec.ID.Valid() {
		return fmt.Errorf("register: invalid object id %d", uint8(spec.ID))
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	obj := &object{
		spec:    spec,
		visible: spec.Visible,
		grab:    spec.Grabbable,
		local:   spec.Pose.Mat4(),
	}
	if prev, ok := r.objects[spec.ID]; ok && prev.retired {
		obj.retired = true
		obj.visible = false
	}
	r.objects[spec.ID] = obj
	return nil
}

// Has reports whether id has been registered.
func (r *Registry) Has(id ObjectID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.objects[id]
	return ok
}

// Get returns a snapshot view of one object.
func (r *Registry) Get(id ObjectID) (Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[id]
	if !ok {
		return Object{}, &MissingReferenceError{ID: id}
	}
	return r.viewLocked(obj), nil
}

// Visible reports whether id is registered and visible.
func (r *Registry) Visible(id ObjectID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[id]
	return ok && obj.visible
}

// Owner returns the controller holding id, if any.
func (r *Registry) Owner(id ObjectID) ControllerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if obj, ok := r.objects[id]; ok {
		return obj.owner
	}
	return ""
}

// WorldTransform returns the object's world matrix.
func (r *Registry) WorldTransform(id ObjectID) (mgl64.Mat4, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[id]
	if !ok {
		return mgl64.Ident4(), &MissingReferenceError{ID: id}
	}
	return r.worldLocked(obj), nil
}

// WorldBounds returns the object's world-space bounding box.
func (r *Registry) WorldBounds(id ObjectID) (spatial.Box, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[id]
	if !ok {
		return spatial.Box{}, &MissingReferenceError{ID: id}
	}
	return obj.spec.Extents.Transform(r.worldLocked(obj)), nil
}

// ProbeBounds returns the world-space box of the object's probe, falling
// back to its full bounds when no probe is declared.
func (r *Registry) ProbeBounds(id ObjectID) (spatial.Box, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[id]
	if !ok {
		return spatial.Box{}, &MissingReferenceError{ID: id}
	}
	local := obj.spec.Extents
	if obj.spec.Probe != nil {
		local = *obj.spec.Probe
	}
	return local.Transform(r.worldLocked(obj)), nil
}

// SetControllerPose updates the world frame of an input controller.
func (r *Registry) SetControllerPose(cid ControllerID, pose spatial.Pose) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers[cid] = pose.Mat4()
}

// ControllerTransform returns the controller frame, identity if unknown.
func (r *Registry) ControllerTransform(cid ControllerID) mgl64.Mat4 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.controllers[cid]; ok {
		return m
	}
	return mgl64.Ident4()
}

// SetVisible shows or hides an object. Retired objects can never be shown.
func (r *Registry) SetVisible(id ObjectID, visible bool) error {
	r.mu.Lock()
	obj, ok := r.objects[id]
	if !ok {
		r.mu.Unlock()
		return &MissingReferenceError{ID: id}
	}
	if visible && obj.retired {
		r.mu.Unlock()
		return &RetiredError{ID: id}
	}
	changed := obj.visible != visible
	obj.visible = visible
	fn := r.onChange
	r.mu.Unlock()

	if changed && fn != nil {
		fn(id, visible)
	}
	return nil
}

// Retire hides an object for the rest of the play-through and makes it
// ungrabbable.
func (r *Registry) Retire(id ObjectID) error {
	r.mu.Lock()
	obj, ok := r.objects[id]
	if !ok {
		r.mu.Unlock()
		return &MissingReferenceError{ID: id}
	}
	changed := obj.visible
	obj.visible = false
	obj.retired = true
	obj.grab = false
	fn := r.onChange
	r.mu.Unlock()

	if changed && fn != nil {
		fn(id, false)
	}
	return nil
}

// SetGrabbable toggles whether grab-start may attach the object.
func (r *Registry) SetGrabbable(id ObjectID, grabbable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[id]
	if !ok {
		return &MissingReferenceError{ID: id}
	}
	if obj.retired {
		return &RetiredError{ID: id}
	}
	obj.grab = grabbable
	return nil
}

// Attach parents id under controller cid with the given local transform.
func (r *Registry) Attach(id ObjectID, cid ControllerID, local mgl64.Mat4) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[id]
	if !ok {
		return &MissingReferenceError{ID: id}
	}
	obj.owner = cid
	obj.local = local
	return nil
}

// Detach re-parents id to the world root with the given world transform.
func (r *Registry) Detach(id ObjectID, world mgl64.Mat4) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[id]
	if !ok {
		return &MissingReferenceError{ID: id}
	}
	obj.owner = ""
	obj.local = world
	return nil
}

// Place moves an unowned object to a world transform.
func (r *Registry) Place(id ObjectID, world mgl64.Mat4) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[id]
	if !ok {
		return &MissingReferenceError{ID: id}
	}
	if obj.owner != "" {
		return fmt.Errorf("place %s: held by %s", id, obj.owner)
	}
	obj.local = world
	return nil
}

// All returns a snapshot of every registered object ordered by id.
func (r *Registry) All() []Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Object, 0, len(r.objects))
	for _, obj := range r.objects {
		out = append(out, r.viewLocked(obj))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) worldLocked(obj *object) mgl64.Mat4 {
	if obj.owner == "" {
		return obj.local
	}
	parent, ok := r.controllers[obj.owner]
	if !ok {
		parent = mgl64.Ident4()
	}
	return spatial.Compose(parent, obj.local)
}

func (r *Registry) viewLocked(obj *object) Object {
	world := r.worldLocked(obj)
	return Object{
		ID:        obj.spec.ID,
		Category:  obj.spec.Category,
		Visible:   obj.visible,
		Grabbable: obj.grab,
		Retired:   obj.retired,
		Owner:     obj.owner,
		World:     spatial.PoseFromMat4(world),
		Bounds:    obj.spec.Extents.Transform(world),
	}
}

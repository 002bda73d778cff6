// Package grab maps each input controller to the prop it currently holds.
package grab

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"

	"github.com/AaronLay10/FoleySim/internal/scene"
	"github.com/AaronLay10/FoleySim/internal/spatial"
)

// ErrInvalidGrab is returned for grab-starts the tracker ignores.
var ErrInvalidGrab = errors.New("invalid grab")

// Session is the ownership relation between a controller and a prop.
type Session struct {
	Controller scene.ControllerID
	Object     scene.ObjectID
}

// Tracker owns every GrabSession. It is the only writer of object
// ownership in the registry.
type Tracker struct {
	reg      *scene.Registry
	sessions map[scene.ControllerID]scene.ObjectID
	log      zerolog.Logger
}

// NewTracker creates a tracker over reg.
func NewTracker(reg *scene.Registry, log zerolog.Logger) *Tracker {
	return &Tracker{
		reg:      reg,
		sessions: make(map[scene.ControllerID]scene.ObjectID),
		log:      log.With().Str("component", "grab").Logger(),
	}
}

// Start attaches id to controller cid, preserving its world transform.
// A non-grabbable, hidden or already-owned target, or a controller that
// already holds something, yields ErrInvalidGrab and changes nothing.
func (t *Tracker) Start(cid scene.ControllerID, id scene.ObjectID) error {
	if cid == "" {
		return fmt.Errorf("%w: empty controller id", ErrInvalidGrab)
	}
	if held, ok := t.sessions[cid]; ok {
		if held == id {
			return nil
		}
		return fmt.Errorf("%w: %s already holds %s", ErrInvalidGrab, cid, held)
	}

	obj, err := t.reg.Get(id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGrab, err)
	}
	switch {
	case !obj.Grabbable:
		return fmt.Errorf("%w: %s is not grabbable", ErrInvalidGrab, id)
	case !obj.Visible:
		return fmt.Errorf("%w: %s is hidden", ErrInvalidGrab, id)
	case obj.Owner != "":
		return fmt.Errorf("%w: %s is held by %s", ErrInvalidGrab, id, obj.Owner)
	}

	if err := t.attach(cid, id, mgl64.Vec3{}); err != nil {
		return err
	}
	t.log.Debug().Str("controller", string(cid)).Stringer("object", id).Msg("grab started")
	return nil
}

// End releases whatever cid holds back to the world root, preserving its
// world transform. It reports the released object.
func (t *Tracker) End(cid scene.ControllerID) (scene.ObjectID, bool) {
	id, ok := t.sessions[cid]
	if !ok {
		return scene.NoObject, false
	}
	t.detach(cid, id)
	t.log.Debug().Str("controller", string(cid)).Stringer("object", id).Msg("grab ended")
	return id, true
}

// Release detaches id from whichever controller holds it. It reports the
// former holder.
func (t *Tracker) Release(id scene.ObjectID) (scene.ControllerID, bool) {
	cid, ok := t.HolderOf(id)
	if !ok {
		return "", false
	}
	t.detach(cid, id)
	return cid, true
}

// Handover attaches id to cid after a composition, shifted by offset in
// world space. The controller must be free.
func (t *Tracker) Handover(cid scene.ControllerID, id scene.ObjectID, offset mgl64.Vec3) error {
	if held, ok := t.sessions[cid]; ok {
		return fmt.Errorf("%w: %s already holds %s", ErrInvalidGrab, cid, held)
	}
	return t.attach(cid, id, offset)
}

// Held returns the object cid holds.
func (t *Tracker) Held(cid scene.ControllerID) (scene.ObjectID, bool) {
	id, ok := t.sessions[cid]
	return id, ok
}

// HolderOf returns the controller holding id.
func (t *Tracker) HolderOf(id scene.ObjectID) (scene.ControllerID, bool) {
	for cid, held := range t.sessions {
		if held == id {
			return cid, true
		}
	}
	return "", false
}

// Sessions returns the live grab sessions ordered by controller.
func (t *Tracker) Sessions() []Session {
	out := make([]Session, 0, len(t.sessions))
	for cid, id := range t.sessions {
		out = append(out, Session{Controller: cid, Object: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Controller < out[j].Controller })
	return out
}

func (t *Tracker) attach(cid scene.ControllerID, id scene.ObjectID, offset mgl64.Vec3) error {
	world, err := t.reg.WorldTransform(id)
	if err != nil {
		return err
	}
	if offset != (mgl64.Vec3{}) {
		world = spatial.PoseFromMat4(world).Translated(offset).Mat4()
	}
	local := spatial.Reparent(world, t.reg.ControllerTransform(cid))
	if err := t.reg.Attach(id, cid, local); err != nil {
		return err
	}
	t.sessions[cid] = id
	return nil
}

func (t *Tracker) detach(cid scene.ControllerID, id scene.ObjectID) {
	delete(t.sessions, cid)
	world, err := t.reg.WorldTransform(id)
	if err != nil {
		t.log.Warn().Err(err).Stringer("object", id).Msg("release of unknown object")
		return
	}
	// the world root is the identity frame, so the world matrix is the new local
	if err := t.reg.Detach(id, spatial.Reparent(world, mgl64.Ident4())); err != nil {
		t.log.Warn().Err(err).Stringer("object", id).Msg("detach failed")
	}
}

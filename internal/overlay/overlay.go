// Package overlay owns the per-frame set of blur and outline elements drawn over the display.
//
// Elements have no identity across frames. Every reconcile tears down what the
// previous frame created and builds the new set from scratch, so an element
// lives for exactly one processed frame.
package overlay

import (
	"fmt"

	"github.com/andresmejia3/veil/internal/types"
)

// Kind is the visual style of an overlay element.
type Kind int

const (
	Blur Kind = iota
	Outline
)

func (k Kind) String() string {
	switch k {
	case Blur:
		return "blur"
	case Outline:
		return "outline"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Element is one on-screen overlay. ID is assigned by the surface and is only
// meaningful for destroying the element it was returned with.
type Element struct {
	ID   uint64
	Kind Kind
	Rect types.Rect
}

// Surface is the display the overlays live on.
type Surface interface {
	// Alive reports whether the surface can still be drawn on.
	Alive() bool
	Create(kind Kind, rect types.Rect) Element
	Destroy(el Element)
}

// Reconciler keeps the surface's overlays equal to the latest detection set.
// It is not safe for concurrent use; call it from the display loop only.
type Reconciler struct {
	surface Surface
	outline bool
	active  []Element
}

// NewReconciler returns a reconciler drawing on s. With outline set, every
// blur element is paired with an outline element at the same rectangle.
func NewReconciler(s Surface, outline bool) *Reconciler {
	return &Reconciler{surface: s, outline: outline}
}

// SetOutline toggles outline pairing from the next reconcile on.
func (r *Reconciler) SetOutline(on bool) { r.outline = on }

// Reconcile replaces the active overlays with one element (or blur+outline
// pair) per rectangle, in the order given. With blurEnabled false it only
// clears. A dead surface turns the call into a no-op.
func (r *Reconciler) Reconcile(boxes []types.Rect, blurEnabled bool) {
	if r.surface == nil || !r.surface.Alive() {
		return
	}

	for _, el := range r.active {
		r.surface.Destroy(el)
	}
	clear(r.active)
	r.active = r.active[:0]

	if !blurEnabled {
		return
	}

	for _, rect := range boxes {
		r.active = append(r.active, r.surface.Create(Blur, rect))
		if r.outline {
			r.active = append(r.active, r.surface.Create(Outline, rect))
		}
	}
}

// Teardown removes every active overlay.
func (r *Reconciler) Teardown() { r.Reconcile(nil, false) }

// Active returns a copy of the active elements in creation order.
func (r *Reconciler) Active() []Element {
	out := make([]Element, len(r.active))
	copy(out, r.active)
	return out
}

// Len is the number of active elements.
func (r *Reconciler) Len() int { return len(r.active) }

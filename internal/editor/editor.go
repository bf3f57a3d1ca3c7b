// Package editor maintains an author's working copy of a form's element list
// and keeps it converged with the store through optimistic mutations:
// reorder, add, remove, and value edits apply locally first, write remotely,
// and fall back to an authoritative re-fetch when a write fails.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/formbotkit/formbot/internal/flow"
	"github.com/formbotkit/formbot/internal/models"
	"github.com/formbotkit/formbot/internal/optimistic"
	"github.com/formbotkit/formbot/internal/store"
	"github.com/formbotkit/formbot/internal/util"
)

// ErrInvalidPosition indicates a move or insert position outside the element
// list.
var ErrInvalidPosition = errors.New("position out of range")

// Store is the slice of the store the editor needs.
type Store interface {
	ListElements(formID string) ([]models.Element, error)
	CreateElements(formID string, elements []models.Element) ([]models.Element, error)
	UpdateElement(formID, elementID string, patch models.ElementPatch) (*models.Element, error)
	DeleteElement(formID, elementID string) error
	ReorderElements(formID string, orderedIDs []string) error
}

// Editor edits one form's element list. Methods are safe for concurrent use.
type Editor struct {
	mu       sync.Mutex
	st       Store
	formID   string
	elements []models.Element
}

// NewEditor loads the form's elements into a working copy.
func NewEditor(st Store, formID string) (*Editor, error) {
	elements, err := st.ListElements(formID)
	if err != nil {
		slog.Error("NewEditor failed to load elements", "error", err, "formID", formID)
		return nil, err
	}
	sort.SliceStable(elements, func(i, j int) bool { return elements[i].Order < elements[j].Order })
	slog.Debug("NewEditor loaded elements", "formID", formID, "count", len(elements))
	return &Editor{st: st, formID: formID, elements: elements}, nil
}

// FormID returns the id of the form being edited.
func (e *Editor) FormID() string { return e.formID }

// Elements returns a copy of the working element list in display order.
func (e *Editor) Elements() []models.Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Element, len(e.elements))
	copy(out, e.elements)
	return out
}

// IsProvisional reports whether an element id was issued locally and is not
// yet known to the store.
func IsProvisional(id string) bool {
	return util.IsProvisionalID(id)
}

// HasUnsavedElements reports whether any working element still carries a
// provisional id.
func (e *Editor) HasUnsavedElements() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.countProvisional() > 0
}

// AddElement inserts a new element at the given index under a provisional id
// and writes it through immediately: the store create and the surrounding
// order push run as one mutation. If the write fails the working copy is
// restored to the pre-add list and re-fetched, so a refused create leaves no
// trace locally.
func (e *Editor) AddElement(ctx context.Context, kind models.ElementKind, label string, atIndex int) (models.Element, error) {
	if !models.IsValidElementKind(kind) {
		return models.Element{}, fmt.Errorf("unknown element kind %q", kind)
	}
	if len(label) > models.MaxLabelLength {
		return models.Element{}, fmt.Errorf("label exceeds %d characters", models.MaxLabelLength)
	}

	e.mu.Lock()
	if atIndex < 0 || atIndex > len(e.elements) {
		e.mu.Unlock()
		return models.Element{}, ErrInvalidPosition
	}
	prev := make([]models.Element, len(e.elements))
	copy(prev, e.elements)
	// The create carries an order past every existing one so the store's
	// uniqueness check cannot trip mid-list; the closing reorder assigns the
	// real position.
	staged := models.Element{
		ID:     util.GenerateProvisionalID(),
		FormID: e.formID,
		Kind:   kind,
		Label:  label,
		Order:  e.nextOrder(),
	}
	inserted := make([]models.Element, 0, len(prev)+1)
	inserted = append(inserted, prev[:atIndex]...)
	inserted = append(inserted, staged)
	inserted = append(inserted, prev[atIndex:]...)
	for i := range inserted {
		inserted[i].Order = i
	}
	e.elements = inserted
	e.mu.Unlock()
	slog.Debug("Editor added provisional element", "formID", e.formID, "elementID", staged.ID, "kind", kind, "index", atIndex)

	finalID := staged.ID
	err := optimistic.Do(ctx, optimistic.Mutation{
		Name: "add element",
		Write: func(ctx context.Context) error {
			created, err := e.st.CreateElements(e.formID, []models.Element{staged})
			if err != nil {
				return err
			}
			if len(created) != 1 {
				return &flow.ConsistencyError{
					Reason: fmt.Sprintf("store returned %d elements for 1 created", len(created)),
				}
			}
			finalID = created[0].ID
			e.mu.Lock()
			if i := e.indexOf(staged.ID); i >= 0 {
				e.elements[i].ID = finalID
			}
			orderedIDs := e.orderedIDs()
			e.mu.Unlock()
			return e.st.ReorderElements(e.formID, orderedIDs)
		},
		Revert: func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.elements = prev
		},
		Reconcile: e.reload,
	})
	if err != nil {
		return models.Element{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if i := e.indexOf(finalID); i >= 0 {
		return e.elements[i], nil
	}
	return staged, nil
}

// MoveElement repositions an element to a new index, renumbering the whole
// list. The new order is written as a single reorder of every element id, so
// the store applies it atomically or not at all. A failed write is not
// selectively reverted; the working copy is replaced wholesale from the
// store, since interleaved moves make a targeted undo unreliable.
//
// While provisional elements exist the reorder stays local; Save pushes the
// final order once every id is authoritative.
func (e *Editor) MoveElement(ctx context.Context, elementID string, toIndex int) error {
	e.mu.Lock()
	from := e.indexOf(elementID)
	if from < 0 {
		e.mu.Unlock()
		return store.ErrElementNotFound
	}
	if toIndex < 0 || toIndex >= len(e.elements) {
		e.mu.Unlock()
		return ErrInvalidPosition
	}

	el := e.elements[from]
	rest := append(e.elements[:from:from], e.elements[from+1:]...)
	reordered := make([]models.Element, 0, len(e.elements))
	reordered = append(reordered, rest[:toIndex]...)
	reordered = append(reordered, el)
	reordered = append(reordered, rest[toIndex:]...)
	for i := range reordered {
		reordered[i].Order = i
	}
	e.elements = reordered
	orderedIDs := e.orderedIDs()
	deferred := e.countProvisional() > 0
	e.mu.Unlock()

	if deferred {
		slog.Debug("Editor move kept local, provisional elements present", "formID", e.formID, "elementID", elementID)
		return nil
	}
	return optimistic.Do(ctx, optimistic.Mutation{
		Name: "reorder elements",
		Write: func(ctx context.Context) error {
			return e.st.ReorderElements(e.formID, orderedIDs)
		},
		Reconcile: e.reload,
	})
}

// RemoveElement deletes an element. Provisional elements are dropped
// locally; persisted ones are removed optimistically, reinserted at their
// old position if the delete fails, and reconciled from the store.
func (e *Editor) RemoveElement(ctx context.Context, elementID string) error {
	e.mu.Lock()
	idx := e.indexOf(elementID)
	if idx < 0 {
		e.mu.Unlock()
		return store.ErrElementNotFound
	}
	removed := e.elements[idx]
	e.elements = append(e.elements[:idx:idx], e.elements[idx+1:]...)
	e.mu.Unlock()

	if IsProvisional(elementID) {
		slog.Debug("Editor dropped provisional element", "formID", e.formID, "elementID", elementID)
		return nil
	}
	return optimistic.Do(ctx, optimistic.Mutation{
		Name: "remove element",
		Write: func(ctx context.Context) error {
			return e.st.DeleteElement(e.formID, elementID)
		},
		Revert: func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			pos := idx
			if pos > len(e.elements) {
				pos = len(e.elements)
			}
			e.elements = append(e.elements[:pos:pos], append([]models.Element{removed}, e.elements[pos:]...)...)
		},
		Reconcile: e.reload,
	})
}

// SetElementValue updates an element's authored value. Provisional elements
// are edited locally; persisted ones write through a patch, restoring the
// previous value if the write fails.
func (e *Editor) SetElementValue(ctx context.Context, elementID, value string) error {
	return e.patch(ctx, elementID, "set element value",
		func(el *models.Element) { el.Value = value },
		models.ElementPatch{Value: &value})
}

// SetElementRequired toggles whether an element's answer is mandatory.
func (e *Editor) SetElementRequired(ctx context.Context, elementID string, required bool) error {
	return e.patch(ctx, elementID, "set element required",
		func(el *models.Element) { el.Required = required },
		models.ElementPatch{Required: &required})
}

func (e *Editor) patch(ctx context.Context, elementID, name string, apply func(*models.Element), p models.ElementPatch) error {
	e.mu.Lock()
	idx := e.indexOf(elementID)
	if idx < 0 {
		e.mu.Unlock()
		return store.ErrElementNotFound
	}
	prev := e.elements[idx]
	apply(&e.elements[idx])
	e.mu.Unlock()

	if IsProvisional(elementID) {
		return nil
	}
	return optimistic.Do(ctx, optimistic.Mutation{
		Name: name,
		Write: func(ctx context.Context) error {
			_, err := e.st.UpdateElement(e.formID, elementID, p)
			return err
		},
		Revert: func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if i := e.indexOf(elementID); i >= 0 {
				e.elements[i] = prev
			}
		},
		Reconcile: e.reload,
	})
}

// Save pushes the working copy to the store: any drafts still carrying a
// provisional id are batch-created and their ids replaced with authoritative
// ones, then the current display order is written so deferred moves take
// effect.
func (e *Editor) Save(ctx context.Context) error {
	e.mu.Lock()
	var provisional []models.Element
	for _, el := range e.elements {
		if IsProvisional(el.ID) {
			provisional = append(provisional, el)
		}
	}
	e.mu.Unlock()

	if len(provisional) > 0 {
		// Deferred moves renumber orders locally only, so the display orders
		// of new elements can collide with orders the store still holds.
		// Create past the store's top order; the closing reorder assigns the
		// real positions.
		existing, err := e.st.ListElements(e.formID)
		if err != nil {
			slog.Error("Editor save failed to load elements", "error", err, "formID", e.formID)
			return fmt.Errorf("save elements: %w", err)
		}
		base := 0
		for _, el := range existing {
			if el.Order >= base {
				base = el.Order + 1
			}
		}
		for i := range provisional {
			provisional[i].Order = base + i
		}

		created, err := e.st.CreateElements(e.formID, provisional)
		if err != nil {
			slog.Error("Editor save failed to create elements", "error", err, "formID", e.formID)
			return fmt.Errorf("save elements: %w", err)
		}
		if len(created) != len(provisional) {
			err := &flow.ConsistencyError{
				Reason: fmt.Sprintf("store returned %d elements for %d created", len(created), len(provisional)),
			}
			if rerr := e.reload(ctx); rerr != nil {
				return errors.Join(err, rerr)
			}
			return err
		}
		e.mu.Lock()
		for i, p := range provisional {
			if idx := e.indexOf(p.ID); idx >= 0 {
				e.elements[idx].ID = created[i].ID
			}
		}
		e.mu.Unlock()
		slog.Info("Editor save created elements", "formID", e.formID, "count", len(created))
	}

	e.mu.Lock()
	orderedIDs := e.orderedIDs()
	e.mu.Unlock()
	return optimistic.Do(ctx, optimistic.Mutation{
		Name: "save order",
		Write: func(ctx context.Context) error {
			return e.st.ReorderElements(e.formID, orderedIDs)
		},
		Reconcile: e.reload,
	})
}

// reload replaces the working copy with the store's element list. Unsaved
// provisional elements are discarded; the store is the source of truth after
// a failed write.
func (e *Editor) reload(ctx context.Context) error {
	elements, err := e.st.ListElements(e.formID)
	if err != nil {
		return err
	}
	sort.SliceStable(elements, func(i, j int) bool { return elements[i].Order < elements[j].Order })
	e.mu.Lock()
	e.elements = elements
	e.mu.Unlock()
	slog.Debug("Editor reloaded elements", "formID", e.formID, "count", len(elements))
	return nil
}

// indexOf returns the working-copy index of an element, or -1. Caller holds
// e.mu.
func (e *Editor) indexOf(elementID string) int {
	for i := range e.elements {
		if e.elements[i].ID == elementID {
			return i
		}
	}
	return -1
}

// orderedIDs returns the element ids in display order. Caller holds e.mu.
func (e *Editor) orderedIDs() []string {
	ids := make([]string, len(e.elements))
	for i := range e.elements {
		ids[i] = e.elements[i].ID
	}
	return ids
}

// nextOrder returns an order value past every existing one. Caller holds
// e.mu.
func (e *Editor) nextOrder() int {
	next := 0
	for _, el := range e.elements {
		if el.Order >= next {
			next = el.Order + 1
		}
	}
	return next
}

// countProvisional returns how many working elements still have provisional
// ids. Caller holds e.mu.
func (e *Editor) countProvisional() int {
	n := 0
	for _, el := range e.elements {
		if IsProvisional(el.ID) {
			n++
		}
	}
	return n
}

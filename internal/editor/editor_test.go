package editor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/formbotkit/formbot/internal/flow"
	"github.com/formbotkit/formbot/internal/models"
	"github.com/formbotkit/formbot/internal/store"
	"github.com/formbotkit/formbot/internal/util"
)

// fakeEditorStore keeps elements in a slice and can be told to fail any
// write, letting tests drive the revert and reconcile paths.
type fakeEditorStore struct {
	mu       sync.Mutex
	elements []models.Element

	createErr   error
	createShort bool
	updateErr   error
	deleteErr   error
	reorderErr  error

	reorders [][]string
}

func (f *fakeEditorStore) ListElements(formID string) ([]models.Element, error) {
	return f.snapshot(), nil
}

func (f *fakeEditorStore) snapshot() []models.Element {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Element, len(f.elements))
	copy(out, f.elements)
	return out
}

func (f *fakeEditorStore) CreateElements(formID string, elements []models.Element) ([]models.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	created := make([]models.Element, len(elements))
	copy(created, elements)
	for i := range created {
		created[i].ID = uuid.NewString()
		created[i].FormID = formID
	}
	f.elements = append(f.elements, created...)
	if f.createShort && len(created) > 0 {
		return created[:len(created)-1], nil
	}
	return created, nil
}

func (f *fakeEditorStore) UpdateElement(formID, elementID string, patch models.ElementPatch) (*models.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for i := range f.elements {
		if f.elements[i].ID != elementID {
			continue
		}
		if patch.Value != nil {
			f.elements[i].Value = *patch.Value
		}
		if patch.Required != nil {
			f.elements[i].Required = *patch.Required
		}
		el := f.elements[i]
		return &el, nil
	}
	return nil, store.ErrElementNotFound
}

func (f *fakeEditorStore) DeleteElement(formID, elementID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i := range f.elements {
		if f.elements[i].ID == elementID {
			f.elements = append(f.elements[:i], f.elements[i+1:]...)
			return nil
		}
	}
	return store.ErrElementNotFound
}

func (f *fakeEditorStore) ReorderElements(formID string, orderedIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reorderErr != nil {
		return f.reorderErr
	}
	if len(orderedIDs) != len(f.elements) {
		return store.ErrReorderMismatch
	}
	byID := make(map[string]models.Element, len(f.elements))
	for _, el := range f.elements {
		byID[el.ID] = el
	}
	next := make([]models.Element, 0, len(orderedIDs))
	for pos, id := range orderedIDs {
		el, ok := byID[id]
		if !ok {
			return store.ErrReorderMismatch
		}
		el.Order = pos
		next = append(next, el)
	}
	f.elements = next
	f.reorders = append(f.reorders, orderedIDs)
	return nil
}

func newFakeEditorStore() *fakeEditorStore {
	return &fakeEditorStore{
		elements: []models.Element{
			{ID: "greet", FormID: "form-1", Kind: models.ElementTextBubble, Label: "Hi!", Order: 0},
			{ID: "name", FormID: "form-1", Kind: models.ElementTextInput, Label: "Your name?", Order: 1},
			{ID: "score", FormID: "form-1", Kind: models.ElementRatingInput, Label: "Rate us", Order: 2},
		},
	}
}

func newTestEditor(t *testing.T, fs *fakeEditorStore) *Editor {
	t.Helper()
	e, err := NewEditor(fs, "form-1")
	if err != nil {
		t.Fatalf("NewEditor() error = %v", err)
	}
	return e
}

func ids(elements []models.Element) []string {
	out := make([]string, len(elements))
	for i, el := range elements {
		out[i] = el.ID
	}
	return out
}

// seedDraft plants a draft element in the working copy, the state an
// interrupted batch leaves behind, so Save's create path can be driven
// directly.
func seedDraft(e *Editor, kind models.ElementKind, label string) models.Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	el := models.Element{
		ID:     util.GenerateProvisionalID(),
		FormID: e.formID,
		Kind:   kind,
		Label:  label,
		Order:  e.nextOrder(),
	}
	e.elements = append(e.elements, el)
	return el
}

func TestMoveElementWritesFullOrder(t *testing.T) {
	fs := newFakeEditorStore()
	e := newTestEditor(t, fs)

	if err := e.MoveElement(context.Background(), "score", 0); err != nil {
		t.Fatalf("MoveElement() error = %v", err)
	}

	want := "score,greet,name"
	if got := strings.Join(ids(e.Elements()), ","); got != want {
		t.Errorf("local order = %s, want %s", got, want)
	}
	if len(fs.reorders) != 1 || strings.Join(fs.reorders[0], ",") != want {
		t.Errorf("store reorders = %v, want one call with %s", fs.reorders, want)
	}
	for i, el := range e.Elements() {
		if el.Order != i {
			t.Errorf("element %s order = %d, want %d", el.ID, el.Order, i)
		}
	}
}

func TestMoveElementInvalidArguments(t *testing.T) {
	fs := newFakeEditorStore()
	e := newTestEditor(t, fs)

	if err := e.MoveElement(context.Background(), "ghost", 0); !errors.Is(err, store.ErrElementNotFound) {
		t.Errorf("MoveElement(unknown) error = %v, want ErrElementNotFound", err)
	}
	if err := e.MoveElement(context.Background(), "name", 3); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("MoveElement(out of range) error = %v, want ErrInvalidPosition", err)
	}
}

func TestMoveElementFailureReconcilesFromStore(t *testing.T) {
	fs := newFakeEditorStore()
	e := newTestEditor(t, fs)
	fs.reorderErr = errors.New("reorder refused")

	err := e.MoveElement(context.Background(), "score", 0)
	if err == nil {
		t.Fatal("MoveElement() error = nil, want write failure")
	}

	// The working copy is replaced from the store, not selectively undone.
	want := "greet,name,score"
	if got := strings.Join(ids(e.Elements()), ","); got != want {
		t.Errorf("order after failed reorder = %s, want %s", got, want)
	}
}

func TestAddElementWritesThrough(t *testing.T) {
	fs := newFakeEditorStore()
	e := newTestEditor(t, fs)

	el, err := e.AddElement(context.Background(), models.ElementEmailInput, "Your email?", 3)
	if err != nil {
		t.Fatalf("AddElement() error = %v", err)
	}
	if IsProvisional(el.ID) {
		t.Errorf("AddElement() id = %q, want store-issued after write-through", el.ID)
	}
	if el.Order != 3 {
		t.Errorf("AddElement() order = %d, want 3", el.Order)
	}
	if e.HasUnsavedElements() {
		t.Error("HasUnsavedElements() = true after a written-through add")
	}
	if len(fs.snapshot()) != 4 {
		t.Error("store did not gain the added element")
	}
	if len(fs.reorders) != 1 {
		t.Errorf("store reorders = %d after add, want 1", len(fs.reorders))
	}

	if _, err := e.AddElement(context.Background(), "hologram", "x", 0); err == nil {
		t.Error("AddElement(unknown kind) error = nil")
	}
	if _, err := e.AddElement(context.Background(), models.ElementTextInput, "x", 9); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("AddElement(out of range) error = %v, want ErrInvalidPosition", err)
	}
}

func TestAddElementAtIndex(t *testing.T) {
	fs := newFakeEditorStore()
	e := newTestEditor(t, fs)

	el, err := e.AddElement(context.Background(), models.ElementEmailInput, "Your email?", 1)
	if err != nil {
		t.Fatalf("AddElement() error = %v", err)
	}

	want := strings.Join([]string{"greet", el.ID, "name", "score"}, ",")
	if got := strings.Join(ids(e.Elements()), ","); got != want {
		t.Errorf("local order = %s, want %s", got, want)
	}
	if got := strings.Join(ids(fs.snapshot()), ","); got != want {
		t.Errorf("store order = %s, want %s", got, want)
	}
	for i, sel := range e.Elements() {
		if sel.Order != i {
			t.Errorf("element %s order = %d, want %d", sel.ID, sel.Order, i)
		}
	}
}

func TestAddElementCreateFailureRollsBack(t *testing.T) {
	fs := newFakeEditorStore()
	e := newTestEditor(t, fs)
	fs.createErr = errors.New("create refused")

	if _, err := e.AddElement(context.Background(), models.ElementTextInput, "More?", 3); err == nil {
		t.Fatal("AddElement() error = nil, want create failure")
	}

	// The working copy must match the pre-add list by id and order.
	if got := strings.Join(ids(e.Elements()), ","); got != "greet,name,score" {
		t.Errorf("list after failed create = %s, want pre-add list greet,name,score", got)
	}
	for i, el := range e.Elements() {
		if el.Order != i {
			t.Errorf("element %s order = %d, want %d", el.ID, el.Order, i)
		}
	}
	if e.HasUnsavedElements() {
		t.Error("HasUnsavedElements() = true after rolled-back add")
	}
	if len(fs.snapshot()) != 3 {
		t.Error("store gained an element from a refused create")
	}
}

func TestAddElementCreateCountMismatch(t *testing.T) {
	fs := newFakeEditorStore()
	e := newTestEditor(t, fs)
	fs.createShort = true

	_, err := e.AddElement(context.Background(), models.ElementTextInput, "More?", 3)
	var cerr *flow.ConsistencyError
	if !errors.As(err, &cerr) {
		t.Fatalf("AddElement() error = %v, want ConsistencyError", err)
	}
	if e.HasUnsavedElements() {
		t.Error("HasUnsavedElements() = true after reconciling a mismatched add")
	}
	if got := len(e.Elements()); got != len(fs.snapshot()) {
		t.Errorf("len(elements) = %d, want store count %d", got, len(fs.snapshot()))
	}
}

func TestSaveCreatesDraftsAndPushesOrder(t *testing.T) {
	fs := newFakeEditorStore()
	e := newTestEditor(t, fs)

	el := seedDraft(e, models.ElementEmailInput, "Your email?")
	// Moves stay local while a draft exists.
	if err := e.MoveElement(context.Background(), el.ID, 1); err != nil {
		t.Fatalf("MoveElement() error = %v", err)
	}
	if len(fs.reorders) != 0 {
		t.Fatalf("store reorders = %v before Save, want none", fs.reorders)
	}

	if err := e.Save(context.Background()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if e.HasUnsavedElements() {
		t.Error("HasUnsavedElements() = true after Save")
	}

	elements := e.Elements()
	if len(elements) != 4 {
		t.Fatalf("len(elements) = %d, want 4", len(elements))
	}
	saved := elements[1]
	if IsProvisional(saved.ID) {
		t.Errorf("element id %q still provisional after Save", saved.ID)
	}
	if saved.Kind != models.ElementEmailInput {
		t.Errorf("element at index 1 = %s, want the drafted email input", saved.Kind)
	}
	if len(fs.reorders) != 1 {
		t.Errorf("store reorders = %d after Save, want 1", len(fs.reorders))
	}
	if got := len(fs.snapshot()); got != 4 {
		t.Errorf("store elements = %d after Save, want 4", got)
	}
}

func TestSaveCreateFailureKeepsDraft(t *testing.T) {
	fs := newFakeEditorStore()
	e := newTestEditor(t, fs)
	fs.createErr = errors.New("create refused")

	seedDraft(e, models.ElementTextInput, "More?")
	if err := e.Save(context.Background()); err == nil {
		t.Fatal("Save() error = nil, want create failure")
	}
	if !e.HasUnsavedElements() {
		t.Error("draft lost after failed Save")
	}
}

func TestSaveCreateCountMismatchReconciles(t *testing.T) {
	fs := newFakeEditorStore()
	e := newTestEditor(t, fs)
	fs.createShort = true

	seedDraft(e, models.ElementTextInput, "More?")

	err := e.Save(context.Background())
	var cerr *flow.ConsistencyError
	if !errors.As(err, &cerr) {
		t.Fatalf("Save() error = %v, want ConsistencyError", err)
	}
	// The working copy is rebuilt from the store; no provisional id survives.
	if e.HasUnsavedElements() {
		t.Error("HasUnsavedElements() = true after reconciling a mismatched Save")
	}
	if got := len(e.Elements()); got != len(fs.snapshot()) {
		t.Errorf("len(elements) = %d, want store count %d", got, len(fs.snapshot()))
	}
}

func TestRemoveElement(t *testing.T) {
	fs := newFakeEditorStore()
	e := newTestEditor(t, fs)

	if err := e.RemoveElement(context.Background(), "name"); err != nil {
		t.Fatalf("RemoveElement() error = %v", err)
	}
	if got := strings.Join(ids(e.Elements()), ","); got != "greet,score" {
		t.Errorf("elements = %s, want greet,score", got)
	}
	if len(fs.snapshot()) != 2 {
		t.Error("store still holds the removed element")
	}

	if err := e.RemoveElement(context.Background(), "ghost"); !errors.Is(err, store.ErrElementNotFound) {
		t.Errorf("RemoveElement(unknown) error = %v, want ErrElementNotFound", err)
	}
}

func TestRemoveProvisionalElementIsLocal(t *testing.T) {
	fs := newFakeEditorStore()
	e := newTestEditor(t, fs)

	el := seedDraft(e, models.ElementTextInput, "More?")
	if err := e.RemoveElement(context.Background(), el.ID); err != nil {
		t.Fatalf("RemoveElement(provisional) error = %v", err)
	}
	if e.HasUnsavedElements() {
		t.Error("HasUnsavedElements() = true after removing the only draft")
	}
}

func TestRemoveElementFailureRestoresPosition(t *testing.T) {
	fs := newFakeEditorStore()
	e := newTestEditor(t, fs)
	fs.deleteErr = errors.New("delete refused")

	if err := e.RemoveElement(context.Background(), "name"); err == nil {
		t.Fatal("RemoveElement() error = nil, want delete failure")
	}
	if got := strings.Join(ids(e.Elements()), ","); got != "greet,name,score" {
		t.Errorf("elements after failed delete = %s, want original order", got)
	}
}

func TestSetElementValue(t *testing.T) {
	fs := newFakeEditorStore()
	e := newTestEditor(t, fs)

	if err := e.SetElementValue(context.Background(), "greet", "Welcome aboard!"); err != nil {
		t.Fatalf("SetElementValue() error = %v", err)
	}
	if got := e.Elements()[0].Value; got != "Welcome aboard!" {
		t.Errorf("local value = %q, want updated", got)
	}
	if got := fs.snapshot()[0].Value; got != "Welcome aboard!" {
		t.Errorf("store value = %q, want updated", got)
	}
}

func TestSetElementValueFailureReverts(t *testing.T) {
	fs := newFakeEditorStore()
	e := newTestEditor(t, fs)
	fs.updateErr = errors.New("update refused")

	if err := e.SetElementValue(context.Background(), "greet", "nope"); err == nil {
		t.Fatal("SetElementValue() error = nil, want update failure")
	}
	if got := e.Elements()[0].Value; got != "" {
		t.Errorf("local value = %q after failed write, want reverted", got)
	}
}

func TestSetElementRequired(t *testing.T) {
	fs := newFakeEditorStore()
	e := newTestEditor(t, fs)

	if err := e.SetElementRequired(context.Background(), "name", true); err != nil {
		t.Fatalf("SetElementRequired() error = %v", err)
	}
	if !fs.snapshot()[1].Required {
		t.Error("store required flag = false, want true")
	}
}

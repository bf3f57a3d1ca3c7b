package flow

import (
	"reflect"
	"sort"
	"testing"

	"github.com/formbotkit/formbot/internal/models"
)

func TestInitialReveal(t *testing.T) {
	elements := []models.Element{
		{ID: "a", Kind: models.ElementTextBubble, Order: 0},
		{ID: "b", Kind: models.ElementTextInput, Order: 1},
		{ID: "c", Kind: models.ElementTextBubble, Order: 2},
	}

	got := InitialReveal(elements)
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("InitialReveal() = %v, want %v", got, want)
	}
}

func TestInitialRevealTiedOrders(t *testing.T) {
	elements := []models.Element{
		{ID: "a", Kind: models.ElementTextBubble, Order: 0},
		{ID: "b1", Kind: models.ElementTextBubble, Order: 1},
		{ID: "b2", Kind: models.ElementTextInput, Order: 1},
		{ID: "c", Kind: models.ElementTextInput, Order: 2},
	}

	got := InitialReveal(elements)
	sort.Strings(got)
	want := []string{"a", "b1", "b2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("InitialReveal() = %v, want %v", got, want)
	}
}

func TestInitialRevealEmptyForm(t *testing.T) {
	if got := InitialReveal(nil); len(got) != 0 {
		t.Errorf("InitialReveal(nil) = %v, want empty", got)
	}
}

func TestNextReveal(t *testing.T) {
	elements := []models.Element{
		{ID: "a", Kind: models.ElementTextBubble, Order: 0},
		{ID: "b", Kind: models.ElementTextInput, Order: 1},
		{ID: "c", Kind: models.ElementTextBubble, Order: 2},
		{ID: "d", Kind: models.ElementRatingInput, Order: 3},
	}
	visible := map[string]bool{"a": true, "b": true}

	got := NextReveal(elements, visible, "b")
	want := []string{"c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NextReveal() = %v, want %v", got, want)
	}
}

func TestNextRevealSkipsAlreadyVisible(t *testing.T) {
	elements := []models.Element{
		{ID: "a", Kind: models.ElementTextBubble, Order: 0},
		{ID: "b", Kind: models.ElementTextInput, Order: 1},
	}
	visible := map[string]bool{"a": true, "b": true}

	if got := NextReveal(elements, visible, "a"); len(got) != 0 {
		t.Errorf("NextReveal() = %v, want empty for already-visible group", got)
	}
}

func TestNextRevealStallAtEnd(t *testing.T) {
	elements := []models.Element{
		{ID: "a", Kind: models.ElementTextBubble, Order: 0},
		{ID: "b", Kind: models.ElementTextInput, Order: 1},
	}
	visible := map[string]bool{"a": true, "b": true}

	if got := NextReveal(elements, visible, "b"); len(got) != 0 {
		t.Errorf("NextReveal() at end = %v, want empty", got)
	}
}

func TestNextRevealUnknownElement(t *testing.T) {
	elements := []models.Element{
		{ID: "a", Kind: models.ElementTextBubble, Order: 0},
	}

	if got := NextReveal(elements, map[string]bool{"a": true}, "nope"); got != nil {
		t.Errorf("NextReveal() for unknown id = %v, want nil", got)
	}
}

func TestNextRevealRevealsWholeTie(t *testing.T) {
	elements := []models.Element{
		{ID: "a", Kind: models.ElementTextInput, Order: 1},
		{ID: "b1", Kind: models.ElementTextBubble, Order: 2},
		{ID: "b2", Kind: models.ElementImageBubble, Order: 2},
	}
	visible := map[string]bool{"a": true}

	got := NextReveal(elements, visible, "a")
	sort.Strings(got)
	want := []string{"b1", "b2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NextReveal() = %v, want %v", got, want)
	}
}

// Package flow implements the conversational form runtime.
//
// This file holds the flow cursor: pure functions deciding which elements to
// reveal next. Reveal is strictly additive; elements are never hidden once
// shown.
package flow

import "github.com/formbotkit/formbot/internal/models"

// InitialReveal returns the ids revealed on first load: every element in the
// two lowest order groups (order 0 and order 1). This seeds the conversation
// with the opening bubble and the first prompt without waiting for
// interaction.
func InitialReveal(elements []models.Element) []string {
	var ids []string
	for _, el := range elements {
		if el.Order == 0 || el.Order == 1 {
			ids = append(ids, el.ID)
		}
	}
	return ids
}

// NextReveal returns the ids to reveal after the element advancedID has been
// answered or has auto-advanced: every not-yet-visible element whose order is
// exactly one past the advanced element's order. An empty result means the
// flow has stalled at its end, which is terminal rather than an error.
// Elements tied at the same order all reveal together, with no ordering
// guarantee within the tie.
func NextReveal(elements []models.Element, visible map[string]bool, advancedID string) []string {
	var advanced *models.Element
	for i := range elements {
		if elements[i].ID == advancedID {
			advanced = &elements[i]
			break
		}
	}
	if advanced == nil {
		return nil
	}

	nextOrder := advanced.Order + 1
	var ids []string
	for _, el := range elements {
		if el.Order == nextOrder && !visible[el.ID] {
			ids = append(ids, el.ID)
		}
	}
	return ids
}

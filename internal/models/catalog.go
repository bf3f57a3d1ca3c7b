// Package models defines the core data structures for FormBot.
//
// This file holds the element catalog: which element kinds exist, which are
// presentational vs interactive, and what answer shape each interactive kind
// accepts.
package models

import (
	"regexp"
	"strconv"
	"time"
)

// ElementKind identifies the kind of a form element.
type ElementKind string

const (
	// ElementTextBubble shows authored text to the respondent.
	ElementTextBubble ElementKind = "text-bubble"
	// ElementImageBubble shows an authored image.
	ElementImageBubble ElementKind = "image-bubble"
	// ElementVideoBubble shows an authored video.
	ElementVideoBubble ElementKind = "video-bubble"
	// ElementGifBubble shows an authored GIF.
	ElementGifBubble ElementKind = "gif-bubble"
	// ElementTextInput collects a free-text answer.
	ElementTextInput ElementKind = "text-input"
	// ElementNumberInput collects a numeric answer.
	ElementNumberInput ElementKind = "number-input"
	// ElementEmailInput collects an email address.
	ElementEmailInput ElementKind = "email-input"
	// ElementPhoneInput collects a phone number.
	ElementPhoneInput ElementKind = "phone-input"
	// ElementDateInput collects a date answer.
	ElementDateInput ElementKind = "date-input"
	// ElementRatingInput collects a 1-5 rating.
	ElementRatingInput ElementKind = "rating-input"
	// ElementButtonInput is a completion trigger; pressing it records the
	// fixed literal "completed" and forces the session to completion.
	ElementButtonInput ElementKind = "button-input"
)

// AnswerKind describes the shape of answer an interactive element accepts.
type AnswerKind string

const (
	// AnswerText accepts any non-empty string.
	AnswerText AnswerKind = "text"
	// AnswerNumber accepts a parseable number.
	AnswerNumber AnswerKind = "number"
	// AnswerEmail accepts an email address.
	AnswerEmail AnswerKind = "email"
	// AnswerPhone accepts a phone number.
	AnswerPhone AnswerKind = "phone"
	// AnswerDate accepts a YYYY-MM-DD date.
	AnswerDate AnswerKind = "date"
	// AnswerRating accepts an integer from 1 to 5.
	AnswerRating AnswerKind = "rating"
	// AnswerCompletion accepts only the fixed completion literal.
	AnswerCompletion AnswerKind = "completion"
	// AnswerNone is returned for kinds that collect no answer, including
	// unrecognized kinds.
	AnswerNone AnswerKind = "none"
)

// IsValidElementKind checks if the given element kind is part of the catalog.
// Unknown kinds are not an error elsewhere; they render as unsupported and
// are excluded from completion counting and response collection.
func IsValidElementKind(k ElementKind) bool {
	switch k {
	case ElementTextBubble, ElementImageBubble, ElementVideoBubble, ElementGifBubble,
		ElementTextInput, ElementNumberInput, ElementEmailInput, ElementPhoneInput,
		ElementDateInput, ElementRatingInput, ElementButtonInput:
		return true
	default:
		return false
	}
}

// IsPresentational reports whether the kind never collects a response.
func IsPresentational(k ElementKind) bool {
	switch k {
	case ElementTextBubble, ElementImageBubble, ElementVideoBubble, ElementGifBubble:
		return true
	default:
		return false
	}
}

// IsInteractive reports whether the kind collects exactly one response.
// Unrecognized kinds are neither presentational nor interactive.
func IsInteractive(k ElementKind) bool {
	return IsValidElementKind(k) && !IsPresentational(k)
}

// AnswerKindFor returns the answer shape for an element kind.
func AnswerKindFor(k ElementKind) AnswerKind {
	switch k {
	case ElementTextInput:
		return AnswerText
	case ElementNumberInput:
		return AnswerNumber
	case ElementEmailInput:
		return AnswerEmail
	case ElementPhoneInput:
		return AnswerPhone
	case ElementDateInput:
		return AnswerDate
	case ElementRatingInput:
		return AnswerRating
	case ElementButtonInput:
		return AnswerCompletion
	default:
		return AnswerNone
	}
}

var (
	emailRegexp = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRegexp = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// ValidateAnswer checks a submitted answer against the element kind's
// expected shape. Validation failures are recovered locally by the caller
// and never sent to the store.
func ValidateAnswer(kind ElementKind, value string) error {
	if !IsInteractive(kind) {
		return ErrNotInteractive
	}
	if value == "" {
		return ErrEmptyAnswer
	}
	if len(value) > MaxAnswerLength {
		return ErrAnswerTooLong
	}

	switch AnswerKindFor(kind) {
	case AnswerText:
		return nil
	case AnswerNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return ErrInvalidNumber
		}
	case AnswerEmail:
		if !emailRegexp.MatchString(value) {
			return ErrInvalidEmail
		}
	case AnswerPhone:
		if !phoneRegexp.MatchString(value) {
			return ErrInvalidPhone
		}
	case AnswerDate:
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return ErrInvalidDate
		}
	case AnswerRating:
		n, err := strconv.Atoi(value)
		if err != nil || n < MinRating || n > MaxRating {
			return ErrInvalidRating
		}
	case AnswerCompletion:
		if value != ButtonCompletionValue {
			return ErrInvalidCompletion
		}
	}
	return nil
}

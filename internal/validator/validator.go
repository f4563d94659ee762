// Package validator rejects translation requests before any network call is made.
package validator

import (
	"fmt"
	"unicode/utf16"

	"github.com/valpere/codeconvert/internal/language"
	"github.com/valpere/codeconvert/internal/translator"
)

// DefaultMaxInputLength is the largest accepted input, in UTF-16 code units.
const DefaultMaxInputLength = 16000

type Reason int

const (
	SameLanguage Reason = iota + 1
	EmptyInput
	InputTooLong
	UnknownLanguage
)

func (r Reason) String() string {
	switch r {
	case SameLanguage:
		return "same_language"
	case EmptyInput:
		return "empty_input"
	case InputTooLong:
		return "input_too_long"
	case UnknownLanguage:
		return "unknown_language"
	default:
		return "unknown"
	}
}

// Error is a user-facing validation failure.
type Error struct {
	Reason Reason
	Length int
	Max    int
	Label  string
}

func (e *Error) Error() string {
	switch e.Reason {
	case SameLanguage:
		return "Please select different languages."
	case EmptyInput:
		return "Please enter some code."
	case InputTooLong:
		return fmt.Sprintf("Please enter code less than %d characters. You are currently at %d characters.", e.Max, e.Length)
	case UnknownLanguage:
		return fmt.Sprintf("Unknown language %q.", e.Label)
	default:
		return "Invalid request."
	}
}

type Validator struct {
	maxLength      int
	checkLanguages bool
}

// New creates a Validator. maxLength ≤ 0 selects DefaultMaxInputLength.
func New(maxLength int) *Validator {
	if maxLength <= 0 {
		maxLength = DefaultMaxInputLength
	}
	return &Validator{maxLength: maxLength}
}

// Strict additionally rejects labels outside the recognized language set.
func (v *Validator) Strict() *Validator {
	return &Validator{maxLength: v.maxLength, checkLanguages: true}
}

func (v *Validator) MaxLength() int {
	return v.maxLength
}

// Validate returns nil or a *Error. Checks run in a fixed order so the user
// always sees the same message for the same input.
func (v *Validator) Validate(req translator.TranslateBody) error {
	if req.InputLanguage == req.OutputLanguage {
		return &Error{Reason: SameLanguage}
	}

	if v.checkLanguages {
		for _, label := range []string{req.InputLanguage, req.OutputLanguage} {
			if !language.IsRecognized(label) {
				return &Error{Reason: UnknownLanguage, Label: label}
			}
		}
	}

	if req.InputCode == "" {
		return &Error{Reason: EmptyInput}
	}

	if n := InputLength(req.InputCode); n > v.maxLength {
		return &Error{Reason: InputTooLong, Length: n, Max: v.maxLength}
	}

	return nil
}

// InputLength counts s in UTF-16 code units, the unit browsers report as
// string length.
func InputLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

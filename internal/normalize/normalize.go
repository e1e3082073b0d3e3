// Package normalize maps loosely typed Notion property values onto the small
// canonical vocabulary enforced by the task table constraints.
//
// Every function here is total: arbitrary input (including emoji-prefixed
// option names and empty strings) yields either a canonical value or the
// empty string, which callers treat as null. Nothing panics and nothing
// returns an out-of-set value.
//
// Defaulting differs by kind. Status and priority have a safe default for
// non-empty input that carries no recognizable cue. Focus slots never
// default, because a wrong slot would mis-schedule the task.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Canonical status values.
const (
	StatusToDo       = "To Do"
	StatusInProgress = "In Progress"
	StatusDone       = "Done"
	StatusOnHold     = "On Hold"
)

// Canonical priority values.
const (
	PriorityP0 = "P0"
	PriorityP1 = "P1"
	PriorityP2 = "P2"
	PriorityP3 = "P3"
)

// Statuses lists the canonical statuses in display order.
var Statuses = []string{StatusToDo, StatusInProgress, StatusDone, StatusOnHold}

// Priorities lists the canonical priorities, most urgent first.
var Priorities = []string{PriorityP0, PriorityP1, PriorityP2, PriorityP3}

// Clean applies NFKC, drops the leading run of symbols (emoji, variation
// selectors, joiners, punctuation, whitespace) and trims the remainder.
func Clean(s string) string {
	s = norm.NFKC.String(s)
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.TrimSpace(s)
}

// fold returns the case-folded form of s with inner whitespace collapsed.
// A Caser is stateful, so each call gets its own.
func fold(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// Status maps a raw status label to one of Statuses.
// Empty input returns "".
func Status(raw string) string {
	s := fold(Clean(raw))
	if s == "" {
		return ""
	}
	switch {
	case strings.Contains(s, "hold"), strings.Contains(s, "paused"), strings.Contains(s, "blocked"):
		return StatusOnHold
	case strings.Contains(s, "progress"), strings.Contains(s, "doing"), strings.Contains(s, "started") && !strings.Contains(s, "not started"):
		return StatusInProgress
	case strings.Contains(s, "done"), strings.Contains(s, "complete"):
		return StatusDone
	default:
		return StatusToDo
	}
}

// Priority maps a raw priority label to one of Priorities.
// Empty input returns "".
func Priority(raw string) string {
	s := fold(Clean(raw))
	if s == "" {
		return ""
	}
	// Explicit P-levels win over words so "P1 - high" and "P3 (was high)"
	// both resolve to their stated level.
	for _, p := range Priorities {
		if containsToken(s, fold(p)) {
			return p
		}
	}
	switch {
	case strings.Contains(s, "urgent"), strings.Contains(s, "critical"):
		return PriorityP0
	case strings.Contains(s, "high"):
		return PriorityP1
	case strings.Contains(s, "medium"), strings.Contains(s, "normal"):
		return PriorityP2
	case strings.Contains(s, "low"):
		return PriorityP3
	default:
		return PriorityP2
	}
}

// FocusSlot resolves raw against the canonical slot list: exact folded
// match first, then substring match in either direction, in list order.
// The boolean is false when raw was non-empty but nothing matched, which
// signals drift between the Notion option list and the canonical list.
func FocusSlot(raw string, canonical []string) (string, bool) {
	s := fold(Clean(raw))
	if s == "" {
		return "", true
	}
	for _, slot := range canonical {
		if fold(slot) == s {
			return slot, true
		}
	}
	for _, slot := range canonical {
		f := fold(slot)
		if f == "" {
			continue
		}
		if strings.Contains(f, s) || strings.Contains(s, f) {
			return slot, true
		}
	}
	return "", false
}

// Text cleans free text fields (names, titles): symbols are kept, only
// surrounding whitespace and NFKC presentation differences are removed.
func Text(raw string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(raw)), " ")
}

// containsToken reports whether tok appears in s delimited by non
// alphanumeric runes, so "p1" matches "p1 high" but not "p10".
func containsToken(s, tok string) bool {
	for i := 0; i < len(s); {
		j := strings.Index(s[i:], tok)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(tok)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if !alnum(before) && !alnum(after) {
			return true
		}
		i = start + 1
	}
	return false
}

func alnum(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

package normalize

import (
	"testing"
)

func TestClean(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"🔥 Urgent", "Urgent"},
		{"✅ Done", "Done"},
		{"👨‍💻 Doing", "Doing"},
		{"⏸️ On Hold", "On Hold"},
		{"- P1 high", "P1 high"},
		{"  Morning Routine  ", "Morning Routine"},
		{"🔥🔥🔥", ""},
		{"Ｐ１", "P1"},
	}

	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"🔥", ""},
		{"To Do", StatusToDo},
		{"📥 Inbox", StatusToDo},
		{"Not started", StatusToDo},
		{"🏃 In Progress", StatusInProgress},
		{"doing", StatusInProgress},
		{"Started", StatusInProgress},
		{"✅ Done", StatusDone},
		{"COMPLETED", StatusDone},
		{"⏸️ On Hold", StatusOnHold},
		{"Paused", StatusOnHold},
		{"blocked by vendor", StatusOnHold},
		{"something else entirely", StatusToDo},
	}

	for _, tt := range tests {
		if got := Status(tt.in); got != tt.want {
			t.Errorf("Status(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPriority(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  ", ""},
		{"🔥 P0", PriorityP0},
		{"Urgent", PriorityP0},
		{"🚨 critical", PriorityP0},
		{"P1 - High", PriorityP1},
		{"high", PriorityP1},
		{"p2", PriorityP2},
		{"Medium", PriorityP2},
		{"🧊 Low", PriorityP3},
		{"P3 (was high)", PriorityP3},
		{"P10", PriorityP2},
		{"whenever", PriorityP2},
	}

	for _, tt := range tests {
		if got := Priority(tt.in); got != tt.want {
			t.Errorf("Priority(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFocusSlot(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		want        string
		wantMatched bool
	}{
		{"empty", "", "", true},
		{"symbols only", "☀️", "", true},
		{"exact with emoji", "☀️ Morning Routine", "Morning Routine", true},
		{"case-insensitive", "deep work block 2", "Deep Work Block 2", true},
		{"substring of canonical", "Admin", "Admin Block", true},
		{"canonical inside value", "🎨 Creative Block (afternoon)", "Creative Block", true},
		{"first in list order", "Deep Work", "Deep Work Block 1", true},
		{"no match", "Study Time", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, matched := FocusSlot(tt.in, DefaultFocusSlots)
			if got != tt.want || matched != tt.wantMatched {
				t.Errorf("FocusSlot(%q) = (%q, %v), want (%q, %v)", tt.in, got, matched, tt.want, tt.wantMatched)
			}
		})
	}
}

func TestFocusSlot_EmptyCanonical(t *testing.T) {
	got, matched := FocusSlot("Morning Routine", nil)
	if got != "" || matched {
		t.Errorf("FocusSlot with no canonical list = (%q, %v), want (\"\", false)", got, matched)
	}
}

// Every output must be empty or a member of the canonical set, whatever
// the input looks like.
func TestOutputsAlwaysCanonical(t *testing.T) {
	inputs := []string{
		"", " ", "\x00", "\xff\xfe", "🔥", "🔥 🔥", "‍", "️",
		"P", "p-1", "hold on progress", "done but on hold",
		"ｄｏｎｅ", "İnProgress", "ß", "Deep", "block",
	}

	inSet := func(v string, set []string) bool {
		if v == "" {
			return true
		}
		for _, s := range set {
			if s == v {
				return true
			}
		}
		return false
	}

	for _, in := range inputs {
		if got := Status(in); !inSet(got, Statuses) {
			t.Errorf("Status(%q) = %q, not canonical", in, got)
		}
		if got := Priority(in); !inSet(got, Priorities) {
			t.Errorf("Priority(%q) = %q, not canonical", in, got)
		}
		if got, _ := FocusSlot(in, DefaultFocusSlots); !inSet(got, DefaultFocusSlots) {
			t.Errorf("FocusSlot(%q) = %q, not canonical", in, got)
		}
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  Write   report \n", "Write report"},
		{"🔥 Ship it", "🔥 Ship it"},
		{"Ｗｉｄｅ", "Wide"},
	}

	for _, tt := range tests {
		if got := Text(tt.in); got != tt.want {
			t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContainsToken(t *testing.T) {
	tests := []struct {
		s, tok string
		want   bool
	}{
		{"p1", "p1", true},
		{"p1 high", "p1", true},
		{"was p1", "p1", true},
		{"p10", "p1", false},
		{"xp1", "p1", false},
		{"p10 p1", "p1", true},
		{"é p1é", "p1", false},
	}

	for _, tt := range tests {
		if got := containsToken(tt.s, tt.tok); got != tt.want {
			t.Errorf("containsToken(%q, %q) = %v, want %v", tt.s, tt.tok, got, tt.want)
		}
	}
}

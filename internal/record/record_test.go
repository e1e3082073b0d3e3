package record

import (
	"testing"
	"time"

	"github.com/notionsync/notionsync/internal/normalize"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestNormalize_Canonical(t *testing.T) {
	src := &SourceRecord{
		ExternalID: "page-1",
		Title:      "Ship report",
		Domain:     "health",
		Priority:   "🔴 P1",
		Status:     "🔄 In Progress",
		FocusSlot:  "🎯 Deep Work Block 1",
	}

	n, drift := Normalize(src, normalize.DefaultFocusSlots)
	if len(drift) != 0 {
		t.Errorf("drift = %v, want none", drift)
	}
	if n.Priority != "P1" {
		t.Errorf("Priority = %q, want P1", n.Priority)
	}
	if n.Status != "In Progress" {
		t.Errorf("Status = %q, want In Progress", n.Status)
	}
	if n.FocusSlot != "Deep Work Block 1" {
		t.Errorf("FocusSlot = %q, want Deep Work Block 1", n.FocusSlot)
	}
	if n.Category != "health" {
		t.Errorf("Category = %q, want health", n.Category)
	}
}

func TestNormalize_CategoryPrefersVenture(t *testing.T) {
	n, _ := Normalize(&SourceRecord{Domain: "work", Venture: " Acme  Labs "}, nil)
	if n.Category != "Acme Labs" {
		t.Errorf("Category = %q, want Acme Labs", n.Category)
	}

	n, _ = Normalize(&SourceRecord{Domain: "work"}, nil)
	if n.Category != "work" {
		t.Errorf("Category = %q, want work", n.Category)
	}
}

func TestNormalize_FocusSlotDrift(t *testing.T) {
	n, drift := Normalize(&SourceRecord{Title: "Read", FocusSlot: "Study Time"}, normalize.DefaultFocusSlots)
	if n.FocusSlot != "" {
		t.Errorf("FocusSlot = %q, want null", n.FocusSlot)
	}
	if len(drift) != 1 || drift[0].Field != FieldFocusSlot || drift[0].Value != "Study Time" {
		t.Errorf("drift = %v, want one focus_slot entry", drift)
	}
}

func TestNormalize_DatesTruncated(t *testing.T) {
	due := time.Date(2025, 3, 14, 23, 30, 0, 0, time.UTC)
	n, _ := Normalize(&SourceRecord{DueDate: &due}, nil)
	if n.Due == nil || !n.Due.Equal(*date(2025, 3, 14)) {
		t.Errorf("Due = %v, want 2025-03-14", n.Due)
	}
	if n.FocusDate != nil {
		t.Errorf("FocusDate = %v, want nil", n.FocusDate)
	}
}

func TestHash_PresentationIndependent(t *testing.T) {
	base := SourceRecord{
		Title:     "Ship report",
		Domain:    "health",
		Status:    "In Progress",
		FocusSlot: "Deep Work Block 1",
		DueDate:   date(2025, 1, 2),
	}

	var hashes []string
	for _, p := range []string{"🔴 P1", "high", "P1"} {
		src := base
		src.Priority = p
		n, _ := Normalize(&src, normalize.DefaultFocusSlots)
		hashes = append(hashes, n.Hash())
	}

	for i := 1; i < len(hashes); i++ {
		if hashes[i] != hashes[0] {
			t.Errorf("hash %d = %s, want %s", i, hashes[i], hashes[0])
		}
	}

	emoji := base
	emoji.Priority = "P1"
	emoji.Status = "🔄 in progress"
	emoji.FocusSlot = "🎯 deep work block 1"
	n, _ := Normalize(&emoji, normalize.DefaultFocusSlots)
	if n.Hash() != hashes[0] {
		t.Errorf("emoji-prefixed status/slot changed the hash")
	}
}

func TestHash_ChangesWithContent(t *testing.T) {
	a := &Normalized{Title: "A", Category: "health", Priority: "P1"}
	b := &Normalized{Title: "A", Category: "health", Priority: "P2"}
	if a.Hash() == b.Hash() {
		t.Error("different priorities produced the same hash")
	}

	c := &Normalized{Title: "A", Category: "health", Priority: "P1", Due: date(2025, 1, 2)}
	if a.Hash() == c.Hash() {
		t.Error("adding a due date did not change the hash")
	}
}

func TestHashFields(t *testing.T) {
	fields := map[string]string{FieldTitle: "x", FieldPriority: "P0"}

	withExtra := map[string]string{FieldTitle: "x", FieldPriority: "P0", "notes": "ignored"}
	if HashFields(fields) != HashFields(withExtra) {
		t.Error("keys outside the hash order changed the digest")
	}

	// Shifting text between adjacent fields must not collide.
	left := map[string]string{FieldTitle: "a\"b", FieldCategory: ""}
	right := map[string]string{FieldTitle: "a", FieldCategory: "b"}
	if HashFields(left) == HashFields(right) {
		t.Error("field boundary collision")
	}

	if got := len(HashFields(nil)); got != 64 {
		t.Errorf("len(HashFields(nil)) = %d, want 64", got)
	}
}

func TestMissing(t *testing.T) {
	tests := []struct {
		name string
		n    Normalized
		want []string
	}{
		{"complete", Normalized{Title: "t", Category: "c", Priority: "P2"}, nil},
		{"no category", Normalized{Title: "t", Priority: "P2"}, []string{FieldCategory}},
		{"nothing", Normalized{}, []string{FieldTitle, FieldCategory, FieldPriority}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.n.Missing(DefaultRequired)
			if len(got) != len(tt.want) {
				t.Fatalf("Missing() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Missing()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestIsField(t *testing.T) {
	if !IsField(FieldFocusDate) {
		t.Error("IsField(focus_date) = false")
	}
	if IsField("domain") {
		t.Error("IsField(domain) = true")
	}
}

func TestSourceRecord_IsLinked(t *testing.T) {
	if (&SourceRecord{}).IsLinked() {
		t.Error("empty record reported linked")
	}
	if !(&SourceRecord{TargetID: "t-1"}).IsLinked() {
		t.Error("record with target id not reported linked")
	}
	if !(&SourceRecord{Linked: true}).IsLinked() {
		t.Error("record with checkbox not reported linked")
	}
}

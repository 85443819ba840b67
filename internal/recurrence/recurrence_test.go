package recurrence

import (
	"testing"
	"time"
)

// TestNextDue_AllRules checks one step of every rule from a fixed Monday.
func TestNextDue_AllRules(t *testing.T) {
	// 2026-02-02 is a Monday.
	cases := []struct {
		rule string
		want string
	}{
		{"daily", "2026-02-03"},
		{"weekdays", "2026-02-03"},
		{"weekly", "2026-02-09"},
		{"biweekly", "2026-02-16"},
		{"monthly", "2026-03-02"},
		{"quarterly", "2026-05-02"},
		{"biannual", "2026-08-02"},
		{"annual", "2027-02-02"},
	}
	for _, tc := range cases {
		got, ok := NextDue("2026-02-02", tc.rule)
		if !ok {
			t.Fatalf("NextDue(2026-02-02, %s) not ok", tc.rule)
		}
		if got != tc.want {
			t.Errorf("NextDue(2026-02-02, %s) = %s, want %s", tc.rule, got, tc.want)
		}
	}
}

// TestNextDue_WeekdaysSkipsWeekend verifies Friday rolls to Monday.
func TestNextDue_WeekdaysSkipsWeekend(t *testing.T) {
	// 2026-02-06 is a Friday.
	got, ok := NextDue("2026-02-06", "weekdays")
	if !ok {
		t.Fatal("NextDue not ok")
	}
	if got != "2026-02-09" {
		t.Errorf("NextDue(friday, weekdays) = %s, want 2026-02-09", got)
	}

	// Saturday anchors also land on Monday.
	got, _ = NextDue("2026-02-07", "weekdays")
	if got != "2026-02-09" {
		t.Errorf("NextDue(saturday, weekdays) = %s, want 2026-02-09", got)
	}
}

// TestNextDue_UnknownRule verifies malformed rules are rejected, not fatal.
func TestNextDue_UnknownRule(t *testing.T) {
	if _, ok := NextDue("2026-02-02", "fortnightly-ish"); ok {
		t.Error("expected unknown rule to report not ok")
	}
	if _, ok := NextDue("2026-02-02", ""); ok {
		t.Error("expected empty rule to report not ok")
	}
}

// TestNextDue_EmptyAnchor verifies today is used when no due date exists.
func TestNextDue_EmptyAnchor(t *testing.T) {
	got, ok := NextDue("", "daily")
	if !ok {
		t.Fatal("NextDue not ok")
	}
	want := ToLocalISODate(time.Now().AddDate(0, 0, 1))
	if got != want {
		t.Errorf("NextDue(empty, daily) = %s, want %s", got, want)
	}
}

// TestPrevDue_InvertsNextDue checks the round trip for every rule across
// several anchors, including weekend-adjacent and month-end dates.
func TestPrevDue_InvertsNextDue(t *testing.T) {
	anchors := []string{
		"2026-02-02", // Monday
		"2026-02-06", // Friday
		"2026-01-31", // month end
		"2026-12-31", // year end
	}
	for _, rule := range Rules() {
		for _, anchor := range anchors {
			next, ok := NextDue(anchor, string(rule))
			if !ok {
				t.Fatalf("NextDue(%s, %s) not ok", anchor, rule)
			}
			back, ok := PrevDue(next, string(rule))
			if !ok {
				t.Fatalf("PrevDue(%s, %s) not ok", next, rule)
			}
			// Month arithmetic is not always invertible at month ends
			// (Jan 31 + 1 month = Mar 3 under AddDate), and weekdays
			// collapses weekend anchors onto Friday. The day-based rules
			// round-trip exactly from weekday anchors.
			wd := ParseISODate(anchor).Weekday()
			weekend := wd == time.Saturday || wd == time.Sunday
			switch {
			case rule == Daily || rule == Weekly || rule == Biweekly,
				rule == Weekdays && !weekend:
				if back != anchor {
					t.Errorf("PrevDue(NextDue(%s, %s)) = %s, want %s", anchor, rule, back, anchor)
				}
			}
		}
	}
}

// TestPrevDue_EmptyCurrent verifies rollback without a due date is a no-op.
func TestPrevDue_EmptyCurrent(t *testing.T) {
	got, ok := PrevDue("", "daily")
	if ok {
		t.Error("expected empty current to report not ok")
	}
	if got != "" {
		t.Errorf("PrevDue(empty) = %q, want empty", got)
	}
}

// TestLabel_KnownAndUnknown checks display labels fall back to raw names.
func TestLabel_KnownAndUnknown(t *testing.T) {
	if got := Label("biweekly"); got != "Every 2 weeks" {
		t.Errorf("Label(biweekly) = %q", got)
	}
	if got := Label("mystery"); got != "mystery" {
		t.Errorf("Label(mystery) = %q, want passthrough", got)
	}
}

// TestIsValid covers the full rule list plus rejects.
func TestIsValid(t *testing.T) {
	for _, rule := range Rules() {
		if !IsValid(string(rule)) {
			t.Errorf("IsValid(%s) = false", rule)
		}
	}
	if IsValid("DAILY") {
		t.Error("rule names are case-sensitive")
	}
}

// TestParseISODate_Invalid verifies malformed dates fall back to today.
func TestParseISODate_Invalid(t *testing.T) {
	got := ParseISODate("not-a-date")
	want := truncateToDate(time.Now())
	if !got.Equal(want) {
		t.Errorf("ParseISODate(invalid) = %v, want %v", got, want)
	}
}

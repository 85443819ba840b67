// Package recurrence computes next and previous due dates for recurring
// tasks.
//
// All dates are local calendar dates in ISO form (YYYY-MM-DD) with no time
// or timezone component. The rule set is fixed; an unknown rule name is not
// an error, it simply yields no recurrence so a malformed rule can never
// crash a caller.
package recurrence

import (
	"fmt"
	"time"
)

// Rule names a recurrence interval.
type Rule string

const (
	Daily     Rule = "daily"
	Weekdays  Rule = "weekdays"
	Weekly    Rule = "weekly"
	Biweekly  Rule = "biweekly"
	Monthly   Rule = "monthly"
	Quarterly Rule = "quarterly"
	Biannual  Rule = "biannual"
	Annual    Rule = "annual"
)

// rules is the canonical ordering, used for listings and validation.
var rules = []Rule{Daily, Weekdays, Weekly, Biweekly, Monthly, Quarterly, Biannual, Annual}

var labels = map[Rule]string{
	Daily:     "Daily",
	Weekdays:  "Weekdays",
	Weekly:    "Weekly",
	Biweekly:  "Every 2 weeks",
	Monthly:   "Monthly",
	Quarterly: "Quarterly",
	Biannual:  "Twice yearly",
	Annual:    "Annually",
}

// Rules returns all known rules in display order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// IsValid reports whether name is a known recurrence rule.
func IsValid(name string) bool {
	_, ok := labels[Rule(name)]
	return ok
}

// Label returns the human-readable label for a rule, or the raw name if the
// rule is unknown.
func Label(name string) string {
	if label, ok := labels[Rule(name)]; ok {
		return label
	}
	return name
}

// ToLocalISODate formats t as a local calendar date.
func ToLocalISODate(t time.Time) string {
	return fmt.Sprintf("%04d-%02d-%02d", t.Year(), int(t.Month()), t.Day())
}

// ParseISODate parses a YYYY-MM-DD string into a local-midnight time.
// Invalid input falls back to today.
func ParseISODate(value string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", value, time.Local)
	if err != nil {
		return truncateToDate(time.Now())
	}
	return t
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}

func addDays(date string, days int) string {
	return ToLocalISODate(ParseISODate(date).AddDate(0, 0, days))
}

func addMonths(date string, months int) string {
	return ToLocalISODate(ParseISODate(date).AddDate(0, months, 0))
}

// addWeekdays steps forward n business days, skipping Saturday and Sunday.
func addWeekdays(date string, n int) string {
	d := ParseISODate(date)
	for remaining := n; remaining > 0; {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			remaining--
		}
	}
	return ToLocalISODate(d)
}

func subtractWeekdays(date string, n int) string {
	d := ParseISODate(date)
	for remaining := n; remaining > 0; {
		d = d.AddDate(0, 0, -1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			remaining--
		}
	}
	return ToLocalISODate(d)
}

// NextDue returns the due date following current under the given rule.
// When current is empty, today anchors the calculation. The second return
// is false when the rule is unknown, in which case the caller should leave
// the due date untouched.
func NextDue(current, rule string) (string, bool) {
	if !IsValid(rule) {
		return "", false
	}
	anchor := current
	if anchor == "" {
		anchor = ToLocalISODate(time.Now())
	}
	switch Rule(rule) {
	case Daily:
		return addDays(anchor, 1), true
	case Weekdays:
		return addWeekdays(anchor, 1), true
	case Weekly:
		return addDays(anchor, 7), true
	case Biweekly:
		return addDays(anchor, 14), true
	case Monthly:
		return addMonths(anchor, 1), true
	case Quarterly:
		return addMonths(anchor, 3), true
	case Biannual:
		return addMonths(anchor, 6), true
	case Annual:
		return addMonths(anchor, 12), true
	}
	return "", false
}

// PrevDue is the inverse of NextDue, used only to roll back a same-day
// completion of a recurring task. An empty current or unknown rule is a
// no-op.
func PrevDue(current, rule string) (string, bool) {
	if current == "" || !IsValid(rule) {
		return current, false
	}
	switch Rule(rule) {
	case Daily:
		return addDays(current, -1), true
	case Weekdays:
		return subtractWeekdays(current, 1), true
	case Weekly:
		return addDays(current, -7), true
	case Biweekly:
		return addDays(current, -14), true
	case Monthly:
		return addMonths(current, -1), true
	case Quarterly:
		return addMonths(current, -3), true
	case Biannual:
		return addMonths(current, -6), true
	case Annual:
		return addMonths(current, -12), true
	}
	return current, false
}

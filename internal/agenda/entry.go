// Package agenda turns parsed calendar feeds into the ordered list of
// entries shown for a single day.
package agenda

import (
	"time"
	"unicode/utf8"
)

// Display budgets, in characters, for the short text variants.
const (
	TitleBudget       = 23
	DescriptionBudget = 20
)

// Ellipsis replaces the last character of truncated text.
const Ellipsis = "…"

// timeLabelLayout is a 12-hour clock with AM/PM, e.g. "9:05 AM".
const timeLabelLayout = "3:04 PM"

// Entry is one resolved item of today's agenda. It is immutable: all state
// is set by NewAllDayEntry / NewTimedEntry and only read afterwards.
type Entry struct {
	timed       bool
	start       time.Time
	end         time.Time
	title       string
	description string
}

// NewAllDayEntry builds an entry without start/end instants.
func NewAllDayEntry(title, description string) Entry {
	return Entry{title: title, description: description}
}

// NewTimedEntry builds an entry that spans [start, end].
func NewTimedEntry(start, end time.Time, title, description string) Entry {
	return Entry{
		timed:       true,
		start:       start,
		end:         end,
		title:       title,
		description: description,
	}
}

// IsAllDay reports whether the entry has no start instant.
func (e Entry) IsAllDay() bool { return !e.timed }

// Start returns the start instant; ok is false for all-day entries.
func (e Entry) Start() (t time.Time, ok bool) { return e.start, e.timed }

// End returns the end instant; ok is false for all-day entries.
func (e Entry) End() (t time.Time, ok bool) { return e.end, e.timed }

func (e Entry) Title() string       { return e.title }
func (e Entry) Description() string { return e.description }

// StartLabel formats the start as "h:mm AM". Empty for all-day entries.
func (e Entry) StartLabel() string {
	if !e.timed {
		return ""
	}
	return e.start.Format(timeLabelLayout)
}

// EndLabel formats the end as "h:mm PM". Empty for all-day entries.
func (e Entry) EndLabel() string {
	if !e.timed {
		return ""
	}
	return e.end.Format(timeLabelLayout)
}

// TitleShort is the title cut to TitleBudget characters.
func (e Entry) TitleShort() string { return Shorten(e.title, TitleBudget) }

// DescriptionShort is the description cut to DescriptionBudget characters.
func (e Entry) DescriptionShort() string { return Shorten(e.description, DescriptionBudget) }

// Shorten returns s unchanged if it has at most budget characters.
// Otherwise it keeps budget-1 characters and appends Ellipsis, so the
// printed length is exactly budget.
func Shorten(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= budget {
		return s
	}
	runes := []rune(s)
	return string(runes[:budget-1]) + Ellipsis
}

package ics

import (
	"iter"
	"time"

	"github.com/teambition/rrule-go"

	appLog "kindlecal/internal/log"
)

// Occurrence is one concrete instance of an event.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Recurring reports whether the event carries a recurrence rule.
func (ev ParsedEvent) Recurring() bool {
	return ev.RawRRule != ""
}

// Duration is the template length applied to every instance.
func (ev ParsedEvent) Duration() time.Duration {
	if ev.End.Before(ev.Start) {
		return 0
	}
	return ev.End.Sub(ev.Start)
}

// Occurrences lazily yields the instances of a recurring event whose start
// lies within [from, to], in chronological order. EXDATEs (including
// instances replaced by overrides) are skipped. Non-recurring events and
// unparseable rules yield nothing.
//
// The sequence walks the rule on demand: a consumer that stops after the
// first instance never computes the rest.
func (ev ParsedEvent) Occurrences(from, to time.Time) iter.Seq[Occurrence] {
	return func(yield func(Occurrence) bool) {
		if !ev.Recurring() || to.Before(from) {
			return
		}

		set, err := ev.ruleSet(from)
		if err != nil {
			appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
			return
		}

		dur := ev.Duration()
		next := set.Iterator()
		for {
			start, ok := next()
			if !ok || start.After(to) {
				return
			}
			if start.Before(from) {
				continue
			}
			if !yield(Occurrence{Start: start, End: start.Add(dur)}) {
				return
			}
		}
	}
}

// FirstOccurrence returns the earliest instance within [from, to].
func (ev ParsedEvent) FirstOccurrence(from, to time.Time) (Occurrence, bool) {
	for occ := range ev.Occurrences(from, to) {
		return occ, true
	}
	return Occurrence{}, false
}

// ruleSet builds the rule set, starting the rule as close to from as the
// rule allows.
func (ev ParsedEvent) ruleSet(from time.Time) (*rrule.Set, error) {
	opt, err := rrule.StrToROption(ev.RawRRule)
	if err != nil {
		return nil, err
	}
	// Instances are generated in the DTSTART zone, so wall-clock times stay
	// put across DST changes.
	opt.Dtstart = fastForward(*opt, ev.Start, from)
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, err
	}

	set := &rrule.Set{}
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}
	return set, nil
}

// fastForward moves the DTSTART of an open-ended sub-daily rule forward by
// whole days, to just before from. Sub-daily instances are counted on the
// wall clock from DTSTART, so a shift of n days yields the same instances
// whenever the rule period divides n days. COUNT rules and daily or coarser
// rules keep their DTSTART.
func fastForward(opt rrule.ROption, start, from time.Time) time.Time {
	var unit int
	switch opt.Freq {
	case rrule.HOURLY:
		unit = 60 * 60
	case rrule.MINUTELY:
		unit = 60
	case rrule.SECONDLY:
		unit = 1
	default:
		return start
	}
	if opt.Count > 0 {
		return start
	}

	// One day of slack keeps the new start before from across DST changes.
	days := int(from.Sub(start).Hours()/24) - 1
	if days <= 0 {
		return start
	}

	const day = 24 * 60 * 60
	period := max(opt.Interval, 1) * unit
	stepDays := period / gcd(period, day)
	shift := days / stepDays * stepDays
	if shift == 0 {
		return start
	}
	return start.AddDate(0, 0, shift)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

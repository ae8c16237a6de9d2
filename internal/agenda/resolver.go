package agenda

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"kindlecal/internal/ics"
	appLog "kindlecal/internal/log"
	"kindlecal/internal/metrics"
)

// maxParallelFetches bounds concurrent feed downloads.
const maxParallelFetches = 4

// Fetcher retrieves the raw text of one calendar source.
type Fetcher interface {
	FetchOne(ctx context.Context, src ics.Source) (ics.FetchResult, error)
}

// ParseFunc turns raw calendar text into events.
type ParseFunc func(src ics.Source, body []byte) ([]ics.ParsedEvent, error)

// Resolver produces the ordered agenda for a day from a set of sources.
type Resolver struct {
	fetcher Fetcher
	parse   ParseFunc
}

// NewResolver wires a Resolver. A nil parse uses ics.ParseICS.
func NewResolver(fetcher Fetcher, parse ParseFunc) *Resolver {
	if parse == nil {
		parse = ics.ParseICS
	}
	return &Resolver{fetcher: fetcher, parse: parse}
}

// ResolveToday returns today's entries from all sources, sorted with
// SortEntries. Only today's calendar date is used; its clock time and
// location are ignored.
//
// Sources are fetched concurrently. A source that cannot be fetched or
// parsed contributes nothing and never fails the call, so the result may
// be empty but is never an error.
func (r *Resolver) ResolveToday(ctx context.Context, sources []ics.Source, today time.Time) []Entry {
	target := newDay(today)

	perSource := make([][]Entry, len(sources))
	var g errgroup.Group
	g.SetLimit(maxParallelFetches)
	for i, src := range sources {
		g.Go(func() error {
			perSource[i] = r.resolveSource(ctx, src, target)
			return nil
		})
	}
	_ = g.Wait()

	// Merge in source order so the result does not depend on which fetch
	// finished first.
	var entries []Entry
	for _, es := range perSource {
		entries = append(entries, es...)
	}
	SortEntries(entries)

	metrics.EntriesResolved.Observe(float64(len(entries)))
	return entries
}

// resolveSource fetches, parses and matches one source. Failures are
// logged and yield nil.
func (r *Resolver) resolveSource(ctx context.Context, src ics.Source, d day) (entries []Entry) {
	res, err := r.fetcher.FetchOne(ctx, src)
	if err != nil || len(res.Body) == 0 {
		if err == nil {
			err = ics.ErrEmptyBody
		}
		appLog.Error("source skipped: fetch failed", err, "id", src.ID, "url", ics.RedactURL(src.URL))
		metrics.RecordSource(src.ID, metrics.StatusFetchError)
		return nil
	}

	defer func() {
		if p := recover(); p != nil {
			appLog.Error("source skipped: panic while resolving", fmt.Errorf("%v", p), "id", src.ID, "url", ics.RedactURL(src.URL))
			metrics.RecordSource(src.ID, metrics.StatusParseError)
			entries = nil
		}
	}()

	events, err := r.parse(src, res.Body)
	if err != nil {
		appLog.Error("source skipped: parse failed", err, "id", src.ID, "url", ics.RedactURL(src.URL))
		metrics.RecordSource(src.ID, metrics.StatusParseError)
		return nil
	}

	for _, ev := range events {
		if e, ok := matchEvent(ev, d); ok {
			entries = append(entries, e)
		}
	}
	metrics.RecordSource(src.ID, metrics.StatusOK)
	appLog.Debug("source resolved", "id", src.ID, "events", len(events), "entries", len(entries), "from_cache", res.FromCache)
	return entries
}

// day is the target calendar date. Only its year, month and day matter:
// every component is judged in the zone its own feed encoded.
type day struct {
	year  int
	month time.Month
	dom   int
}

func newDay(t time.Time) day {
	y, m, d := t.Date()
	return day{year: y, month: m, dom: d}
}

// window returns [00:00:00, 23:59:59.999] of the day in loc.
func (d day) window(loc *time.Location) (time.Time, time.Time) {
	from := time.Date(d.year, d.month, d.dom, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 1).Add(-time.Millisecond)
	return from, to
}

func (d day) is(t time.Time) bool {
	y, m, dd := t.Date()
	return y == d.year && m == d.month && dd == d.dom
}

// matchEvent applies the two exclusive matching paths: the event's own
// start date, then (for recurring events only) the first instance inside
// the day.
//
// Dates and instants are taken as the feed wrote them: a TZID event is
// judged on its own wall clock, a floating one on the host's, and neither
// is converted.
func matchEvent(ev ics.ParsedEvent, d day) (Entry, bool) {
	if d.is(ev.Start) {
		return newEntry(ev, ev.Start, ev.End), true
	}
	if !ev.Recurring() {
		return Entry{}, false
	}

	occ, ok := ev.FirstOccurrence(d.window(ev.Start.Location()))
	if !ok {
		return Entry{}, false
	}
	return newEntry(ev, occ.Start, occ.End), true
}

func newEntry(ev ics.ParsedEvent, start, end time.Time) Entry {
	if ev.AllDay {
		return NewAllDayEntry(ev.Summary, ev.Location)
	}
	return NewTimedEntry(start, end, ev.Summary, ev.Location)
}

// SortEntries orders all-day entries first, then by start, then by end,
// with absent instants first. The sort is stable.
func SortEntries(entries []Entry) {
	slices.SortStableFunc(entries, compareEntries)
}

func compareEntries(a, b Entry) int {
	if a.IsAllDay() != b.IsAllDay() {
		if a.IsAllDay() {
			return -1
		}
		return 1
	}
	as, aok := a.Start()
	bs, bok := b.Start()
	if c := compareOptional(as, aok, bs, bok); c != 0 {
		return c
	}
	ae, aok := a.End()
	be, bok := b.End()
	return compareOptional(ae, aok, be, bok)
}

func compareOptional(a time.Time, aok bool, b time.Time, bok bool) int {
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	return a.Compare(b)
}

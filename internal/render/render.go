// Package render ties resolution, layout and PNG encoding together into the
// single "render today's image" operation.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"

	"kindlecal/internal/agenda"
	"kindlecal/internal/ics"
	appLog "kindlecal/internal/log"
	"kindlecal/internal/metrics"
)

// Render triggers, used as metric labels.
const (
	TriggerHTTP      = "http"
	TriggerScheduler = "scheduler"
	TriggerCLI       = "cli"
)

// Resolver produces the agenda for a day.
type Resolver interface {
	ResolveToday(ctx context.Context, sources []ics.Source, today time.Time) []agenda.Entry
}

// Layouter rasterizes an agenda.
type Layouter interface {
	Render(entries []agenda.Entry, now time.Time) (*image.Gray, error)
}

// Renderer is safe for concurrent use as long as its collaborators are.
type Renderer struct {
	resolver Resolver
	layout   Layouter
	sources  []ics.Source
	loc      *time.Location
}

// New builds a Renderer. A nil loc means time.Local.
func New(resolver Resolver, layout Layouter, sources []ics.Source, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	return &Renderer{
		resolver: resolver,
		layout:   layout,
		sources:  sources,
		loc:      loc,
	}
}

// Location returns the display location.
func (r *Renderer) Location() *time.Location { return r.loc }

// Entries resolves the agenda for the day containing now in the display
// location.
func (r *Renderer) Entries(ctx context.Context, now time.Time) []agenda.Entry {
	now = now.In(r.loc)
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, r.loc)
	return r.resolver.ResolveToday(ctx, r.sources, today)
}

// RenderImage resolves and lays out today's agenda.
func (r *Renderer) RenderImage(ctx context.Context, now time.Time) (*image.Gray, error) {
	entries := r.Entries(ctx, now)
	img, err := r.layout.Render(entries, now.In(r.loc))
	if err != nil {
		return nil, fmt.Errorf("render: layout: %w", err)
	}
	appLog.Debug("agenda rendered", "entries", len(entries), "date", now.In(r.loc).Format(time.DateOnly))
	return img, nil
}

// Render returns today's agenda as PNG bytes.
func (r *Renderer) Render(ctx context.Context, now time.Time) ([]byte, error) {
	return r.RenderAs(ctx, now, TriggerCLI)
}

// RenderAs is Render with the trigger label recorded in metrics.
func (r *Renderer) RenderAs(ctx context.Context, now time.Time, trigger string) ([]byte, error) {
	started := time.Now()
	out, err := r.render(ctx, now)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordRender(trigger, status, time.Since(started).Seconds())
	return out, err
}

func (r *Renderer) render(ctx context.Context, now time.Time) ([]byte, error) {
	img, err := r.RenderImage(ctx, now)
	if err != nil {
		return nil, err
	}
	return EncodePNG(img)
}

// EncodePNG encodes img at best compression.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("render: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

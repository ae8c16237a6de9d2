// Package scheduler periodically renders today's agenda to disk, so the
// device and /preview.png always have a recent image even when no one has
// requested one.
package scheduler

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"kindlecal/internal/convert"
	appLog "kindlecal/internal/log"
	"kindlecal/internal/metrics"
	"kindlecal/internal/render"
)

// DumpName is the packed 1bpp plane written next to the PNG when dumping.
const DumpName = "image.bin"

// ImageRenderer renders the agenda raster for the day containing now.
type ImageRenderer interface {
	RenderImage(ctx context.Context, now time.Time) (*image.Gray, error)
}

// Options configure a Scheduler.
type Options struct {
	// Spec is a standard 5-field cron expression.
	Spec string
	// Location the cron expression is evaluated in.
	Location *time.Location
	// OutputPath receives the PNG.
	OutputPath string
	// Dump also writes the packed plane next to OutputPath.
	Dump bool
}

// Scheduler runs the refresh job.
type Scheduler struct {
	cron     *cron.Cron
	opts     Options
	renderer ImageRenderer
	now      func() time.Time
}

// New validates opts and builds a Scheduler. It does not start the cron.
func New(renderer ImageRenderer, opts Options) (*Scheduler, error) {
	if opts.OutputPath == "" {
		return nil, fmt.Errorf("scheduler: output path is empty")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(opts.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	s := &Scheduler{
		cron:     c,
		opts:     opts,
		renderer: renderer,
		now:      time.Now,
	}
	if _, err := c.AddFunc(opts.Spec, s.refresh); err != nil {
		return nil, fmt.Errorf("scheduler: add refresh %q: %w", opts.Spec, err)
	}
	return s, nil
}

// Start runs the cron until ctx is canceled, then waits for a running job.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	appLog.Info("scheduler started",
		"refresh", s.opts.Spec,
		"tz", s.opts.Location.String(),
		"output", s.opts.OutputPath,
		"next", s.Next().Format(time.RFC3339),
	)

	<-ctx.Done()
	<-s.cron.Stop().Done()
	appLog.Info("scheduler stopped")
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := s.RunOnce(ctx, render.TriggerScheduler); err != nil {
		appLog.Error("scheduled refresh failed", err)
	}
}

// RunOnce renders the agenda and writes it to the output path. trigger
// labels the render in metrics.
func (s *Scheduler) RunOnce(ctx context.Context, trigger string) error {
	started := time.Now()
	err := s.runOnce(ctx)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordRender(trigger, status, time.Since(started).Seconds())
	return err
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	img, err := s.renderer.RenderImage(ctx, s.now())
	if err != nil {
		return err
	}
	data, err := render.EncodePNG(img)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.opts.OutputPath, data); err != nil {
		return err
	}
	appLog.Info("image written", "path", s.opts.OutputPath, "bytes", len(data))

	if !s.opts.Dump {
		return nil
	}
	plane, err := convert.PackGray(img, 0)
	if err != nil {
		return err
	}
	dumpPath := filepath.Join(filepath.Dir(s.opts.OutputPath), DumpName)
	if err := writeFileAtomic(dumpPath, plane); err != nil {
		return err
	}
	appLog.Info("plane dumped", "path", dumpPath, "bytes", len(plane))
	return nil
}

// writeFileAtomic writes data to a temp file in path's directory and renames
// it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("scheduler: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".kindlecal-*.tmp")
	if err != nil {
		return fmt.Errorf("scheduler: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("scheduler: write %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("scheduler: chmod %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("scheduler: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("scheduler: rename to %s: %w", path, err)
	}
	return nil
}

// cronLogger routes cron's own logging into the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}

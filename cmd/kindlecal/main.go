package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"kindlecal/internal/agenda"
	"kindlecal/internal/battery"
	"kindlecal/internal/config"
	"kindlecal/internal/ics"
	"kindlecal/internal/layout"
	appLog "kindlecal/internal/log"
	"kindlecal/internal/render"
	"kindlecal/internal/scheduler"
	"kindlecal/internal/web"
)

var version = "0.1.0-dev"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	dump       bool
}

func main() {
	flags := parseFlags()
	appLog.Info("kindlecal starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	loc, err := conf.Location()
	if err != nil {
		appLog.Error("invalid timezone", err, "timezone", conf.Timezone)
		os.Exit(1)
	}

	fonts, err := layout.LoadFontSet(conf.FontDir)
	if err != nil {
		appLog.Error("failed to load fonts", err, "font_dir", conf.FontDir)
		os.Exit(1)
	}

	calendars := conf.Sources()
	sources := make([]ics.Source, 0, len(calendars))
	for _, c := range calendars {
		sources = append(sources, ics.Source{ID: c.ID, URL: c.URL})
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"refresh", conf.RefreshCron,
		"cache_dir", conf.CacheDir,
		"output_path", conf.OutputPath,
		"fonts", fonts.Describe(),
		"calendar_count", len(sources),
		"access_key", conf.AccessKey != "",
		"once", flags.once,
		"dump", flags.dump,
	)
	if len(sources) == 0 {
		appLog.Warn("no calendars configured; every render will be empty")
	}

	resolver := agenda.NewResolver(ics.NewFetcher(conf.CacheDir), nil)
	renderer := render.New(resolver, layout.NewEngine(fonts), sources, loc)

	sched, err := scheduler.New(renderer, scheduler.Options{
		Spec:       conf.RefreshCron,
		Location:   loc,
		OutputPath: conf.OutputPath,
		Dump:       flags.dump,
	})
	if err != nil {
		appLog.Error("failed to set up scheduler", err)
		os.Exit(1)
	}

	// Root context canceled on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.once {
		if err := sched.RunOnce(ctx, render.TriggerCLI); err != nil {
			appLog.Error("render failed", err)
			os.Exit(1)
		}
		appLog.Info("kindlecal exiting")
		return
	}

	server := web.NewServer(conf, renderer, battery.Open(conf.Battery))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, conf.Listen)
	})
	g.Go(func() error {
		sched.Start(gctx)
		return nil
	})
	g.Go(func() error {
		// Initial render so /preview.png exists before the first tick.
		if err := sched.RunOnce(gctx, render.TriggerScheduler); err != nil {
			appLog.Error("initial render failed", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		appLog.Error("kindlecal stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("kindlecal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/kindlecal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Render once to the output path and exit")
	flag.BoolVar(&cfg.dump, "dump", false, "Also write the packed 1bpp plane (image.bin) next to the PNG")

	flag.Parse()

	return cfg
}

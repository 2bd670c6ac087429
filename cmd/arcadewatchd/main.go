// Command arcadewatchd is the long-running daemon: it wires the
// orchestrator, the priority-retry uploaders, the database adapter, the
// HTTP control surface, the filesystem watchers, and the notifier together
// and drives them until a shutdown signal arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	flag "github.com/spf13/pflag"

	"github.com/kagehashi-labs/arcadewatchd/internal/config"
	"github.com/kagehashi-labs/arcadewatchd/internal/db"
	"github.com/kagehashi-labs/arcadewatchd/internal/httpapi"
	"github.com/kagehashi-labs/arcadewatchd/internal/intake"
	"github.com/kagehashi-labs/arcadewatchd/internal/logging"
	"github.com/kagehashi-labs/arcadewatchd/internal/notifier"
	"github.com/kagehashi-labs/arcadewatchd/internal/orchestrator"
	"github.com/kagehashi-labs/arcadewatchd/internal/saves"
	"github.com/kagehashi-labs/arcadewatchd/internal/screenshots"
	"github.com/kagehashi-labs/arcadewatchd/internal/watch"
	"github.com/kagehashi-labs/arcadewatchd/internal/workerpool"
)

func usage() {
	fmt.Printf(`arcadewatchd - observes a game emulator host and forwards play sessions.

Usage: arcadewatchd [options]

Valid options:
`)
	flag.PrintDefaults()
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "arcadewatchd.yaml"
	}
	return dir + "/arcadewatchd/config.yaml"
}

func main() {
	configPath := flag.StringP("config-file", "f", defaultConfigPath(),
		"A YAML-formatted configuration file used by arcadewatchd.")
	logLevel := flag.StringP("log", "l", "", "Set logging level: fatal, error, warn, info, debug.")
	logOutput := flag.StringP("log-output", "o", "", "Set the output destination for logs: stdout, stderr, or a file path.")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading configuration:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logOutput != "" {
		cfg.LogOutput = *logOutput
	}
	if err := logging.Configure(cfg.LogLevel, cfg.LogOutput); err != nil {
		fmt.Fprintln(os.Stderr, "configuring logging:", err)
		os.Exit(1)
	}

	log := logging.Named("main")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("arcadewatchd exited with a fatal error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logging.Named("main")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	notify, err := buildNotifier(ctx, cfg)
	if err != nil {
		return err
	}

	pool := workerpool.New(cfg.WorkerPoolSize)

	database, err := db.Open(ctx, cfg.GamesDB, cfg.PlaysDB, pool)
	if err != nil {
		return err
	}
	defer database.Close()

	for _, dir := range []string{cfg.PendingScreenshots, cfg.PendingSaves, cfg.KeepSaves, cfg.ExtraDirectory} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	nowUnix := func() int64 { return time.Now().Unix() }

	orch := orchestrator.New(database, nil, nil, nil, notify, orchestrator.Paths{
		PendingScreenshots: cfg.PendingScreenshots,
		PendingSaves:       cfg.PendingSaves,
		KeepSaves:          cfg.KeepSaves,
		ExtraDirectory:     cfg.ExtraDirectory,
		LatestScreenshot:   cfg.LatestScreenshot,
		TrimGamePrefix:     cfg.TrimGamePrefix,
	})

	intakeSubmitter := intake.New(cfg.IntakeURL, orchestrator.IntakeCallback{O: orch}, nowUnix)
	screenshotsUploader := screenshots.New(cfg.ScreenshotURL, cfg.ScreenshotExtraURL, notify, pool)
	savesUploader := saves.New(cfg.SaveURL, notify, pool)

	intakeSubmitter.SetOnlineReporter(orch)
	screenshotsUploader.SetOnlineReporter(orch)
	savesUploader.SetOnlineReporter(orch)

	orch.SetUploaders(intakeSubmitter, screenshotsUploader, savesUploader)

	httpServer := httpapi.New(cfg.ListenAddress, orch, notify)
	orch.SetHTTPServer(httpServer)

	var watchers []*watch.Watcher
	if len(cfg.ScreenshotWatchDirs) > 0 {
		w, err := watch.New(cfg.ScreenshotWatchDirs, watch.Screenshots, orch)
		if err != nil {
			return err
		}
		watchers = append(watchers, w)
	}
	if len(cfg.SaveWatchDirs) > 0 {
		w, err := watch.New(cfg.SaveWatchDirs, watch.SaveFiles, orch)
		if err != nil {
			return err
		}
		watchers = append(watchers, w)
	}
	for _, w := range watchers {
		orch.AddWatcher(w)
	}

	if err := orch.Start(ctx); err != nil {
		return err
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn().Err(err).Msg("could not notify systemd of readiness")
	} else if sent {
		log.Debug().Msg("notified systemd READY=1")
	}

	go intakeSubmitter.Run(ctx)
	go screenshotsUploader.Run(ctx)
	go savesUploader.Run(ctx)
	for _, w := range watchers {
		go w.Run()
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("http control surface stopped unexpectedly")
		}
	}()

	waitForShutdown(orch, cancel)

	orch.Run(ctx)
	return nil
}

// waitForShutdown translates OS signals into a StartShutdown event on the
// orchestrator's queue. A second interruption forces immediate termination
// without flushing, matching the cooperative-then-forced shutdown the
// filesystem-watch primitive's owning process expects.
func waitForShutdown(orch *orchestrator.Orchestrator, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logging.Named("main").Info().Msg("shutdown signal received, stopping gracefully")
		daemon.SdNotify(false, daemon.SdNotifyStopping)
		orch.Send(orchestrator.Event{Kind: orchestrator.StartShutdown})

		<-sigCh
		logging.Named("main").Warn().Msg("second shutdown signal received, terminating immediately")
		cancel()
		os.Exit(1)
	}()
}

func buildNotifier(ctx context.Context, cfg *config.Config) (notifier.Notifier, error) {
	switch cfg.NotifierMode {
	case "led":
		led := notifier.NewLEDNotifier(cfg.LEDRedPath, cfg.LEDGreenPath)
		go led.Run(ctx)
		return led, nil
	case "dbus":
		d := notifier.NewDBusNotifier()
		if err := d.Start(); err != nil {
			return nil, err
		}
		go func() {
			<-ctx.Done()
			d.Stop()
		}()
		return d, nil
	default:
		return notifier.NewLogNotifier(), nil
	}
}

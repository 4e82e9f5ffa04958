package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trickctl/internal/config"
	"trickctl/internal/eventlog"
	"trickctl/internal/web"
)

func main() {
	var configPath string
	var summarizePath string
	flag.StringVar(&configPath, "config", "./trickctl.yaml", "Path to YAML config")
	flag.StringVar(&summarizePath, "summarize", "", "Print a summary of a recorded tick log and exit")
	flag.Parse()

	if summarizePath != "" {
		if err := printLogSummary(os.Stdout, summarizePath); err != nil {
			fmt.Fprintf(os.Stderr, "summarize: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(2000)
	lg, err := eventlog.NewZap(cfg.Log.Level, cfg.Log.Development, logs)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lg.Info("trickctl starting", zap.String("config", configPath))
	if err := run(ctx, cfg, configPath, lg, logs); err != nil && !errors.Is(err, context.Canceled) {
		lg.Error("trickctl stopped", zap.Error(err))
		_ = lg.Sync()
		os.Exit(1)
	}
	lg.Info("trickctl stopping")
}

type service interface {
	Run(ctx context.Context) error
	Close()
}

func run(ctx context.Context, cfg config.Config, configPath string, lg *zap.Logger, logs *web.LogBuffer) error {
	status := web.NewStatus()
	ticks := web.NewTickBroadcaster()

	var svc service
	var ctl web.TrickController
	settings := web.SettingsStore{ConfigPath: configPath}
	if cfg.Replay.Enable {
		r, err := newReplayRuntime(cfg, lg, status, ticks)
		if err != nil {
			return err
		}
		svc = r
	} else {
		r, err := newSimRuntime(cfg, lg, status, ticks)
		if err != nil {
			return err
		}
		svc, ctl = r, r
		settings.Apply = r.Apply
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Web.Enable {
		h := web.Handler(status, settings, logs, ticks, ctl)
		lg.Info("web listening", zap.String("addr", cfg.Web.Listen))
		go func() {
			if err := web.Serve(ctx, cfg.Web.Listen, h); err != nil && ctx.Err() == nil {
				lg.Error("web server stopped", zap.Error(err))
				cancel()
			}
		}()
	}

	return svc.Run(ctx)
}

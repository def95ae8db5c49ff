package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"RhizaCore/internal/accrual"
	"RhizaCore/internal/admin"
	"RhizaCore/internal/backend"
	"RhizaCore/internal/config"
	"RhizaCore/internal/httpapi"
	"RhizaCore/internal/localstore"
	"RhizaCore/internal/logger"
	"RhizaCore/internal/metrics"
	"RhizaCore/internal/notifier"
	"RhizaCore/internal/remote"
	"RhizaCore/internal/scheduler"
	"RhizaCore/internal/session"
	"RhizaCore/internal/syncer"
	"RhizaCore/internal/ton"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("rhizad failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := pflag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to the YAML config file")
	verbose := pflag.BoolP("verbose", "v", false, "enable debug logging")
	reportOnStart := pflag.Bool("report-on-start", os.Getenv("RUN_ON_START") == "true", "send the daily report right after startup")
	pflag.Parse()

	log := logger.New(*verbose)
	slog.SetDefault(log)
	log.Info("rhizad starting", "version", version)
	metrics.BuildInfo.WithLabelValues(version).Set(1)

	if err := config.LoadDotEnv(".env.local", ".env"); err != nil {
		return err
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	local, err := localstore.Open(cfg.Local.Driver, cfg.Local.Path, log)
	if err != nil {
		return err
	}
	defer local.Close()

	var store remote.BalanceStore
	if cfg.Database.URL != "" {
		pg, err := remote.NewPostgresStore(ctx, cfg.Database.URL, cfg.Database.RunMigrations, log)
		if err != nil {
			return err
		}
		store = pg
	} else {
		log.Warn("DATABASE_URL not set, using in-memory balance store")
		store = remote.NewMemoryStore()
	}
	defer store.Close()

	var procs backend.Procedures
	var checker admin.StatusChecker
	if cfg.Backend.URL != "" {
		client := backend.NewClient(cfg.Backend.URL, cfg.Backend.APIKey, cfg.Proxy, cfg.Backend.Timeout, log)
		procs, checker = client, client
	} else {
		log.Warn("backend url not set, RPC endpoints disabled")
	}
	authorizer := admin.NewAuthorizer(cfg.Admin.SuperAdminIDs, cfg.Admin.SuperAdminTelegramIDs, checker, store, log)

	tonClient, err := ton.NewClient(ton.Options{
		BaseURL:           cfg.TON.APIURL,
		APIKey:            cfg.TON.APIKey,
		RequestsPerSecond: cfg.TON.RequestsPerSecond,
		CacheTTL:          cfg.TON.CacheTTL,
		Proxy:             cfg.Proxy,
		Logger:            log,
	})
	if err != nil {
		return err
	}

	sessions := session.NewManager(session.Options{
		Remote:  store,
		Local:   local,
		BaseROI: cfg.Earnings.BaseROI,
		Limits: syncer.Limits{
			SyncInterval: cfg.Earnings.SyncInterval,
			Window:       cfg.Earnings.RateLimitWindow,
			MaxPerWindow: cfg.Earnings.MaxSyncsPerWindow,
		},
		Intervals: accrual.Intervals{
			Tick:      cfg.Earnings.TickInterval,
			Sync:      cfg.Earnings.SyncPeriod,
			Reconcile: cfg.Earnings.ReconcileInterval,
		},
		Logger: log,
	})

	var tn *notifier.TelegramNotifier
	var sender scheduler.Sender
	var walletNotifier httpapi.Notifier
	if cfg.Telegram.BotToken != "" {
		tn, err = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		if err != nil {
			log.Warn("telegram disabled", "err", err)
			tn = nil
		} else {
			sender, walletNotifier = tn, tn
		}
	}

	sched := scheduler.New(ctx, sessions, store, sender, nil, log)
	if err := sched.RegisterAll(cfg.Schedule.ReconcileCron, cfg.Schedule.ReportCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	srv := httpapi.NewServer(cfg.Server.Addr, httpapi.Options{
		Sessions:    sessions,
		Procedures:  procs,
		Authorizer:  authorizer,
		TON:         tonClient,
		Notifier:    walletNotifier,
		CORSOrigins: cfg.Server.CORSOrigins,
		Receiver:    cfg.TON.ReceiverAddress,
		TransferTTL: cfg.TON.TransferTTL,
		Logger:      log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	if tn != nil {
		g.Go(func() error {
			tn.StartPolling(gctx, sched.HandleCommand)
			return nil
		})
	}
	if *reportOnStart {
		go sched.RunReportNow()
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, stopping")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), sessions.Shutdown(shutdownCtx))
	})

	log.Info("rhizad is running", "addr", cfg.Server.Addr)
	err = g.Wait()
	log.Info("rhizad stopped")
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

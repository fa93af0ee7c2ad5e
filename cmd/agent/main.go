package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/org/mdmagent/internal/api"
	"github.com/org/mdmagent/internal/config"
	"github.com/org/mdmagent/internal/devicecfg"
	"github.com/org/mdmagent/internal/logging"
	"github.com/org/mdmagent/internal/mdmclient"
	"github.com/org/mdmagent/internal/policystore"
	"github.com/org/mdmagent/internal/storage"
	"github.com/org/mdmagent/internal/syncworker"
	"github.com/org/mdmagent/internal/worktime"
)

const policyRefreshJob = "policy-refresh"

func main() {
	// Console logging until the config is known.
	logging.Setup(logging.Options{Level: "info"})

	fs := afero.NewOsFs()
	cfgFile := config.Path()
	cfg, found, err := config.Load(fs, cfgFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfgFile).Msg("failed to load config")
	}
	closer := logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer closer.Close()
	if !found {
		log.Warn().Str("file", cfgFile).Msg("config file not found, using defaults and environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, fs, cfg); err != nil {
		log.Error().Err(err).Msg("agent stopped with error")
		closer.Close()
		os.Exit(1)
	}
	log.Info().Msg("agent stopped")
}

func run(ctx context.Context, fs afero.Fs, cfg config.Config) error {
	logger := log.Logger
	clock := quartz.NewReal()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info().Str("driver", cfg.Storage.Driver).Msg("storage ready, migrations applied")

	device := mdmclient.Device{Project: cfg.Device.Project, DeviceID: cfg.Device.ID}
	clientOpts := mdmclient.Options{Timeout: cfg.Servers.Timeout, Clock: clock, Logger: logger}
	primary, err := mdmclient.New(mdmclient.Endpoint{BaseURL: cfg.Servers.Primary}, device, clientOpts)
	if err != nil {
		return err
	}
	servers := mdmclient.Pair{Primary: primary}
	var secondaryFetcher policystore.Fetcher
	if cfg.Servers.Secondary != "" {
		secondary, err := mdmclient.New(mdmclient.Endpoint{BaseURL: cfg.Servers.Secondary}, device, clientOpts)
		if err != nil {
			return err
		}
		servers.Secondary = secondary
		secondaryFetcher = secondary
	}

	// Policy
	policies := policystore.New(policystore.Options{
		Primary:          primary,
		Secondary:        secondaryFetcher,
		Cache:            store,
		Clock:            clock,
		Logger:           logger,
		MinFetchInterval: cfg.Policy.MinFetchInterval,
	})
	if err := policies.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("could not restore cached policy")
	}
	deviceCfg := devicecfg.NewLoader(fs, cfg.Device.ConfigFile, logger)
	engine := worktime.NewEngine(policies, clock, cfg.Location())

	// Sync jobs
	sched := syncworker.NewScheduler(syncworker.SchedulerOptions{
		MaxConcurrent: cfg.Sync.MaxConcurrent,
		MaxAttempts:   cfg.Sync.MaxAttempts,
		RetryFloor:    cfg.Sync.RetryFloor,
		RetryCeil:     cfg.Sync.RetryCeil,
		Clock:         clock,
		Logger:        logger,
	})
	perms := syncworker.NewCapabilitySet(cfg.Device.Capabilities...)
	sched.Register(syncworker.NewWorker(syncworker.NewCallLogTask(perms, store), servers, store, clock, logger))
	sched.Register(syncworker.NewDetailedInfoReporter(servers, store, clock, logger))
	sched.Register(syncworker.FuncJob{JobName: policyRefreshJob, Fn: func(ctx context.Context) syncworker.Result {
		res := policies.UpdatePolicy(ctx, deviceCfg.LocalPayload())
		if res.Status == policystore.StatusUnavailable && !errors.Is(res.Err, policystore.ErrThrottled) {
			log.Warn().Err(res.Err).Msg("no work-time policy available, enforcement is off")
		}
		return syncworker.Success
	}})
	for job, spec := range map[string]string{
		policyRefreshJob:           cfg.Policy.RefreshSchedule,
		syncworker.CallLogJob:      cfg.Sync.CallLogSchedule,
		syncworker.DetailedInfoJob: cfg.Sync.DetailedInfoSchedule,
	} {
		if spec == "" {
			continue
		}
		if err := sched.Schedule(spec, job); err != nil {
			return err
		}
	}
	if err := sched.Enqueue(policyRefreshJob); err != nil {
		return err
	}
	tracker := syncworker.NewCallStateTracker(sched, cfg.Sync.UploadDelay, logger)

	srv := api.NewServer(api.Deps{
		Store:     store,
		Policies:  policies,
		Engine:    engine,
		Jobs:      sched,
		CallState: tracker,
		Payload:   deviceCfg,
		Logger:    logger,
	}, api.Config{
		ListenAddr: cfg.ListenAddr,
		APIToken:   cfg.APIToken,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return policies.Run(ctx) })
	g.Go(func() error {
		// SIGHUP rereads the device configuration on the policy lane.
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				log.Info().Msg("SIGHUP received, refreshing policy")
				policies.Trigger(deviceCfg.LocalPayload())
			}
		}
	})
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("device", cfg.Device.ID).
		Bool("secondary", servers.Secondary != nil).
		Msg("agent started")
	return g.Wait()
}

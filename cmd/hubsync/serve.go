package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/siqueiraa/HubSync/pkg/config"
	"github.com/siqueiraa/HubSync/pkg/status"
)

// scheduleParser accepts specs with or without a seconds field.
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type serveOptions struct {
	*rootOptions
	runNow bool
}

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run sync batches on the configured schedule",
		Long: `Run sync batches on the cron schedule of the config file and serve
the health and run history on status.addr. A batch that is still running
when the next one is due makes the scheduler skip that tick.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.runNow, "now", false, "run a batch immediately on start")
	return cmd
}

func serve(ctx context.Context, opts *serveOptions) error {
	cfg := config.Load(opts.configPath)

	schedule, err := scheduleParser.Parse(cfg.Schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var srv *status.Server
	if a.journal != nil {
		srv = status.NewServer(a.journal)
	} else {
		srv = status.NewServer(nil)
	}

	batch := func() {
		srv.RunStarted()
		a.runner.RunAll(ctx)
		srv.RunFinished(time.Now())
	}

	logger := cron.PrintfLogger(log.Default())
	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithChain(
			cron.SkipIfStillRunning(logger),
			cron.Recover(logger),
		),
	)
	c.Schedule(schedule, cron.FuncJob(batch))
	c.Start()
	log.Printf("[HubSync] Scheduled sync batches with %q, next at %s",
		cfg.Schedule, schedule.Next(time.Now()).Format(time.RFC3339))

	if opts.runNow {
		go c.Entries()[0].WrappedJob.Run()
	}

	errCh := make(chan error, 1)
	if cfg.Status.Addr != "" {
		go func() {
			errCh <- srv.ListenAndServe(ctx, cfg.Status.Addr)
		}()
	}

	select {
	case <-ctx.Done():
		log.Println("[HubSync] Shutting down...")
	case err = <-errCh:
		if err != nil {
			log.Printf("[HubSync] Status server stopped: %v", err)
		}
	}

	<-c.Stop().Done()
	log.Println("[HubSync] Scheduler stopped")
	return err
}

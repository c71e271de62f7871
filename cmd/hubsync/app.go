package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/siqueiraa/HubSync/pkg/archive"
	"github.com/siqueiraa/HubSync/pkg/batch"
	"github.com/siqueiraa/HubSync/pkg/config"
	"github.com/siqueiraa/HubSync/pkg/contenthub"
	"github.com/siqueiraa/HubSync/pkg/journal"
	"github.com/siqueiraa/HubSync/pkg/notify"
	"github.com/siqueiraa/HubSync/pkg/runner"
	"github.com/siqueiraa/HubSync/pkg/transform"
	"github.com/siqueiraa/HubSync/pkg/watermark"
)

const (
	logFileTimeLayout = "02012006_150405"
	logFileMode       = 0o644
	defaultDirMode    = 0o755
)

// app holds the collaborators of one process.
type app struct {
	cfg     config.AppConfig
	runner  *runner.Runner
	journal *journal.Journal
	notify  *notify.Publisher
	logFile *os.File
}

// openLogFile sends the standard logger to stderr and a new log file in the
// logs folder.
func openLogFile(cfg config.AppConfig, now time.Time) (*os.File, error) {
	dir := cfg.LogsDir()
	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return nil, fmt.Errorf("failed to create logs folder: %w", err)
	}
	name := filepath.Join(dir, "hubsync.log."+now.Format(logFileTimeLayout)+".txt")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}

func resolver(cfg config.AppConfig) watermark.Resolver {
	return watermark.Resolver{
		Incoming:  cfg.IncomingPath(),
		Processed: cfg.ProcessedPath(),
		Overlap:   cfg.DeltaOverlap(),
	}
}

// newApp wires every collaborator from cfg. cfg must be valid.
func newApp(ctx context.Context, cfg config.AppConfig) (*app, error) {
	a := &app{cfg: cfg}

	f, err := openLogFile(cfg, time.Now())
	if err != nil {
		return nil, err
	}
	a.logFile = f

	if err := runner.EnsureFolders(cfg.IncomingPath(), cfg.ProcessedPath()); err != nil {
		a.Close()
		return nil, err
	}

	ns, err := cfg.Namespace()
	if err != nil {
		a.Close()
		return nil, err
	}

	hub, err := contenthub.New(contenthub.Options{
		Endpoint:            cfg.ContentHub.Endpoint,
		ClientID:            cfg.ContentHub.ClientID,
		ClientSecret:        cfg.ContentHub.ClientSecret,
		UserName:            cfg.ContentHub.UserName,
		Password:            cfg.ContentHub.Password,
		Timeout:             cfg.ContentHub.Timeout,
		DefinitionCacheSize: cfg.Cache.Definitions,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	writer, err := batch.NewWriter(cfg.IncomingPath(), cfg.MaxEntityCountInFile)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := runner.Options{
		Mappings:   cfg.Entities,
		Repository: hub,
		Transformer: transform.New(transform.Options{
			Repository:      hub,
			Namespace:       ns,
			BaseURL:         cfg.BaseURL,
			DeliveryHostURL: cfg.DeliveryHostURL,
		}),
		Writer:     writer,
		Watermarks: resolver(cfg),
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(filepath.Join(cfg.WebRootPath, cfg.Journal.Path))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.journal = j
		opts.Journal = j
	}

	if cfg.Archive.S3.Enabled {
		arc, err := archive.New(ctx, cfg.Archive.S3)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts.Archive = arc
	}

	if cfg.Notify.Kafka.Enabled {
		a.notify = notify.NewPublisher(cfg.Notify.Kafka)
		opts.Notify = a.notify
	}

	a.runner = runner.New(opts)
	log.Printf("[HubSync] Loaded %d entity type(s)", len(cfg.Entities))
	return a, nil
}

// Close releases what newApp opened.
func (a *app) Close() {
	if a.notify != nil {
		if err := a.notify.Close(); err != nil {
			log.Printf("[HubSync] Error closing notifier: %v", err)
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			log.Printf("[HubSync] Error closing journal: %v", err)
		}
	}
	if a.logFile != nil {
		log.SetOutput(os.Stderr)
		a.logFile.Close()
	}
}

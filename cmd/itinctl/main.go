package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"itinera/internal/config"
	"itinera/internal/database"
	"itinera/internal/document"
	"itinera/internal/events"
	"itinera/internal/generator"
	"itinera/internal/logging"
	"itinera/internal/repository"
	"itinera/internal/service"
	"itinera/internal/worker"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// cli holds what the subcommands share. Everything is opened lazily so
// commands that only talk to a running server never touch the database.
type cli struct {
	configPath string
	verbose    bool

	cfg     *config.Config
	logger  *zerolog.Logger
	closer  io.Closer
	db      *database.DB
	service *service.ItineraryService
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "itinctl",
		Short:         "Admin tool for the itinerary service",
		Long:          `Generate, inspect, share and export travel itineraries directly against the itinerary database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", defaultConfig, "path to config.yaml")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newGenerateCmd(c),
		newListCmd(c),
		newShowCmd(c),
		newShareCmd(c),
		newCompleteCmd(c),
		newExportCmd(c),
		newBackupCmd(c),
		newHealthCmd(c),
	)
	return root
}

func (c *cli) loadConfig() error {
	if c.cfg != nil {
		return nil
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// stdout принадлежит выводу команд
	logCfg := cfg.Logging
	if out := strings.ToLower(logCfg.Output); out == "" || out == "stdout" {
		logCfg.Output = "stderr"
	}
	logCfg.Level = "warn"
	if c.verbose {
		logCfg.Level = "debug"
	}

	logger, closer, err := logging.New(logCfg, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	l := logger.With().Str("component", "itinctl").Logger()

	c.cfg = cfg
	c.logger = &l
	c.closer = closer
	return nil
}

// open prepares the database and the itinerary service. Sync and notify
// tasks land in the outbox table and are delivered by the running API
// process.
func (c *cli) open() error {
	if c.service != nil {
		return nil
	}
	if err := c.loadConfig(); err != nil {
		return err
	}

	db, err := database.NewDB(c.cfg.Database.Path, c.logger)
	if err != nil {
		return err
	}
	c.db = db

	content := generator.DefaultContent()
	if c.cfg.Generator.ContentFile != "" {
		if content, err = generator.LoadContent(c.cfg.Generator.ContentFile); err != nil {
			return fmt.Errorf("load generator content: %w", err)
		}
	}

	outbox := worker.NewOutboxWorker(db, nil, nil, nil, worker.RetryPolicy{}, c.logger)
	c.service = service.NewItineraryService(
		db,
		generator.NewTemplateGenerator(content),
		events.NewEventBus(),
		outbox,
		repository.NewMemoryDraftRepository(time.Duration(c.cfg.Drafts.TTLSeconds)*time.Second),
		service.ItineraryServiceConfig{PublicBaseURL: c.cfg.API.PublicBaseURL},
		c.logger,
	)
	return nil
}

func (c *cli) newExporter(withImages bool) *document.Exporter {
	var images document.ImageSource
	if withImages {
		timeout := time.Duration(c.cfg.Document.ImageTimeoutSeconds) * time.Second
		images = document.NewImageFetcher(timeout, c.cfg.Document.MaxImageBytes, c.logger)
	}
	var raster document.Rasterizer
	if c.cfg.Document.RasterizerURL != "" {
		raster = document.NewHTTPRasterizer(c.cfg.Document.RasterizerURL, 30*time.Second)
	}
	return document.NewExporter(images, raster, c.logger)
}

func (c *cli) close() error {
	var firstErr error
	if c.db != nil {
		firstErr = c.db.Close()
		c.db = nil
	}
	if c.closer != nil {
		if err := c.closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.closer = nil
	}
	return firstErr
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

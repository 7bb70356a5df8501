package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/weatherlog/internal/api"
	"github.com/lox/weatherlog/internal/config"
	"github.com/lox/weatherlog/internal/export"
	"github.com/lox/weatherlog/internal/ingest"
	"github.com/lox/weatherlog/internal/logging"
	"github.com/lox/weatherlog/internal/store"
)

var version = "dev"

// CLI holds the command line flags. Everything else comes from the
// environment through config.Load, after EnvFile has been applied.
type CLI struct {
	Export string `name:"export" placeholder:"PATH" help:"Overwrite PATH (or an ftp:// URL) with the newest rows after every stored observation."`
	Once   bool   `name:"once" hidden:"" help:"Run a single cycle and exit."`

	EnvFile kongdotenv.ENVFileConfig `name:"env-file" default:".env" optional:"" hidden:"" help:"Load environment variables from this file."`
}

func newParser(cli *CLI) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("weatherlog"),
		kong.Description("Poll current weather and append it to a database."),
		kong.UsageOnError(),
	)
}

func main() {
	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		panic(err)
	}
	_, err = parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(2)
	}

	logger := logging.New(os.Stdout, cfg, version)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cli, cfg, logger); err != nil {
		logger.Error("weatherlog stopped", "err", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cli CLI, cfg config.Config, logger *slog.Logger) error {
	if cfg.APIKey == "" {
		logger.Warn("OPENWEATHER_API_KEY is not set, requests will be rejected")
	}

	st, err := store.Open(ctx, cfg.DBURL, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("database migrated", "dialect", st.Dialect())

	weather := ingest.NewOpenWeather(cfg, nil, logger)
	scheduler := ingest.NewScheduler(st, weather, cfg.PollInterval, logger)
	if cli.Export != "" {
		if _, err := export.ParseDestination(cli.Export); err != nil {
			return err
		}
		scheduler.SetExporter(export.New(st, cfg.ExportLimit, logger), cli.Export)
	}

	if cli.Once {
		logger.Info("running single cycle")
		if err := scheduler.RunCycle(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	if cfg.MetricsAddr != "" {
		server := api.NewServer(st, cfg.MetricsAddr, cfg.PollInterval, cfg.ExportLimit, logger)
		go func() {
			if err := server.Run(ctx); err != nil {
				logger.Error("ops server", "err", err)
			}
		}()
	}

	err = scheduler.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

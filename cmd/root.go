// Package cmd implements the assetpipe command line.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ngld/assetpipe/pkg/config"
	"github.com/ngld/assetpipe/pkg/pipeline"
	"github.com/ngld/assetpipe/pkg/script"
	"github.com/ngld/assetpipe/pkg/tasks"
)

var logger = zerolog.New(NewConsoleWriter(os.Stderr))

var rootCmd = &cobra.Command{
	Use:   "assetpipe",
	Short: "Front-end asset pipeline",
	Long: `assetpipe compiles styles, scripts, pages and images from src/ into dist/.

Without a command it runs the development build, serves dist/ and rebuilds on changes.
Additional tasks and entry points can be declared in a pipeline.star file in the project root.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(cmd, "default")
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "assetpipe.toml", "configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "overrides log.level from the configuration")
	rootCmd.PersistentFlags().StringToStringP("option", "o", nil, "options for pipeline.star (name=value)")
}

// Execute runs the command line. It exits with a non-zero status if anything failed.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed")
		cancel()
		os.Exit(1)
	}
}

type environment struct {
	ctx      context.Context
	cfg      *config.Config
	registry *tasks.Registry
}

func setup(cmd *cobra.Command) (*environment, error) {
	flags := cmd.Flags()
	configFile, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}

	levelOverride, err := flags.GetString("log-level")
	if err != nil {
		return nil, err
	}

	options, err := flags.GetStringToString("option")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	if levelOverride != "" {
		cfg.Log.Level = levelOverride
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	zerolog.SetGlobalLevel(cfg.LogLevel())
	logger = logger.Level(cfg.LogLevel())
	ctx := pipeline.WithLogger(cmd.Context(), &logger)

	registry, err := tasks.New(tasks.Options{
		Config:   cfg,
		Progress: os.Stderr,
		Logger:   &logger,
	})
	if err != nil {
		return nil, err
	}

	if script.Exists(cfg.Root) {
		file := filepath.Join(cfg.Root, script.DefaultFile)
		result, err := script.Load(ctx, file, cfg.Root, registry, options)
		if err != nil {
			return nil, err
		}

		logger.Debug().Str("path", file).Msgf("loaded %d entry points from %s", len(result.Entrypoints), file)
	} else if len(options) > 0 {
		return nil, eris.Errorf("options were passed but %s does not exist", script.DefaultFile)
	}

	return &environment{
		ctx:      ctx,
		cfg:      cfg,
		registry: registry,
	}, nil
}

func runNode(cmd *cobra.Command, name string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}

	node, ok := env.registry.Lookup(name)
	if !ok {
		return eris.Errorf("there is no task or entry point named %s, use \"assetpipe list\" to see all of them", name)
	}

	return pipeline.Execute(env.ctx, node, env.registry.NewRun())
}

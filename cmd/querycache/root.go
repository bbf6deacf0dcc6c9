package main

import (
	"fmt"
	"io"

	"github.com/goliatone/go-query-cache/pkg/di"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries state shared by subcommands for one invocation.
type app struct {
	configPath string
	verbose    bool

	logger    *zap.Logger
	container *di.Container
}

// run executes the CLI with args and closes whatever the command opened.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "querycache",
		Short: "Inspect and maintain the query result cache",
		Long: `Inspect and maintain the query result cache.

Commands open the stores and key index described by the config file. Without
--config the built-in defaults are used: a memory driver with an in-process
index. Those only exist inside the owning process, so index and flush need a
config with shared drivers and a file, redis or database index.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return a.open()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable development logging")

	root.AddCommand(
		newIndexCmd(a),
		newFlushCmd(a),
		newFingerprintCmd(a),
	)
	return root
}

func (a *app) open() error {
	logger := zap.NewNop()
	if a.verbose {
		dev, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		logger = dev
	}
	a.logger = logger

	cfg := di.DefaultConfig()
	if a.configPath != "" {
		loaded, err := di.LoadConfig(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	container, err := di.NewContainer(cfg, di.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	a.container = container
	logger.Debug("container opened", zap.String("config", a.configPath))
	return nil
}

func (a *app) close() error {
	if a.container == nil {
		return nil
	}
	err := a.container.Close()
	a.container = nil
	_ = a.logger.Sync()
	return err
}

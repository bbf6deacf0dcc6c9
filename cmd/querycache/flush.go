package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-query-cache/pkg/di"
	"github.com/spf13/cobra"
)

var errProcessLocal = errors.New("every configured driver is process local, flush from the process that owns the cache")

// localDrivers lists, sorted, the configured drivers a separate process
// cannot reach.
func localDrivers(cfg di.Config) []string {
	shared := make(map[string]bool)
	for _, name := range cfg.SharedDrivers() {
		shared[name] = true
	}
	var names []string
	for name := range cfg.Drivers {
		if !shared[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func newFlushCmd(a *app) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "flush <entity>",
		Short: "Flush every cached result of an entity type",
		Long: `Flush every cached result of an entity type on every configured driver.

The flush goes through the invalidation trigger, so cache.flushing listeners
may veto it and cache.flushed listeners are notified. The invalidation policy
is not consulted. Flushed keys from the key index are printed one per line.

Only shared drivers (redis, database) can be flushed from here. Memory and lru
drivers live inside the process that owns them and are skipped with a
warning. The command fails when no shared driver is configured.

Examples:
  querycache flush user
  querycache --config cache.yaml flush post`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.container.Config()
			if len(cfg.SharedDrivers()) == 0 {
				return errProcessLocal
			}
			if skipped := localDrivers(cfg); len(skipped) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipping process local drivers: %s\n", strings.Join(skipped, ", "))
			}

			keys, err := a.container.Trigger().Flush(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !quiet {
				for _, key := range keys {
					fmt.Fprintln(out, key)
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "flushed %s: %d tracked keys\n", args[0], len(keys))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print flushed keys")
	return cmd
}

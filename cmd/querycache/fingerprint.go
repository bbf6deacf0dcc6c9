package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goliatone/go-query-cache/query"
	"github.com/goliatone/go-query-cache/querycache"
	"github.com/spf13/cobra"
)

func newFingerprintCmd(a *app) *cobra.Command {
	var (
		driver   string
		lifetime string
	)

	cmd := &cobra.Command{
		Use:   "fingerprint <descriptor.json>",
		Short: "Print the cache key of a JSON query descriptor",
		Long: `Print the cache key a query descriptor maps to.

The key depends on the driver and lifetime too, so pass the same values the
application uses. Use "-" to read the descriptor from stdin.

Examples:
  querycache fingerprint users_adults.json
  querycache fingerprint --driver redis --lifetime 1h users_adults.json
  querycache fingerprint --lifetime forever - < users_adults.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := readDescriptor(cmd, args[0])
			if err != nil {
				return err
			}

			var opts []querycache.Option
			if driver != "" {
				opts = append(opts, querycache.WithDriver(driver))
			}
			switch lifetime {
			case "":
			case "forever":
				opts = append(opts, querycache.Forever())
			default:
				d, err := time.ParseDuration(lifetime)
				if err != nil {
					return fmt.Errorf("invalid --lifetime: %w", err)
				}
				opts = append(opts, querycache.WithLifetime(d))
			}

			key, err := a.container.Cache().Fingerprint(desc, opts...)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
	cmd.Flags().StringVarP(&driver, "driver", "d", "", "driver name (default: config default_driver)")
	cmd.Flags().StringVarP(&lifetime, "lifetime", "l", "", `lifetime such as 5m, or "forever" (default: config default_lifetime)`)
	return cmd
}

func readDescriptor(cmd *cobra.Command, path string) (query.Descriptor, error) {
	if path == "-" {
		return query.Decode(cmd.InOrStdin())
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return query.Descriptor{}, fmt.Errorf("open descriptor: %w", err)
	}
	defer f.Close()
	return query.Decode(f)
}

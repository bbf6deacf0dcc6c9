package main

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-query-cache/keyindex"
	"github.com/goliatone/go-query-cache/pkg/di"
	"github.com/spf13/cobra"
)

var (
	errNoIndex    = errors.New("no key index configured")
	errLocalIndex = errors.New("the key index is in-process, only the owning process can read it")
)

func newIndexCmd(a *app) *cobra.Command {
	index := &cobra.Command{
		Use:   "index",
		Short: "Work with the key index",
	}

	var entity string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the key index document",
		Long: `Print the key index as JSON, entity types mapped to their tracked cache keys.

Examples:
  querycache index show
  querycache index show --entity user`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.container.Config().Index.Kind == di.IndexMemory {
				return errLocalIndex
			}
			idx := a.container.Index()
			if idx == nil {
				return errNoIndex
			}
			doc, err := idx.Load(cmd.Context())
			if err != nil {
				return err
			}
			if entity != "" {
				doc = keyindex.Document{entity: doc[entity]}
			}
			out, err := keyindex.Encode(doc)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	show.Flags().StringVarP(&entity, "entity", "e", "", "only show keys of this entity type")

	index.AddCommand(show)
	return index
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/autom8ter/pagestream"
	"github.com/autom8ter/pagestream/internal/util"
)

func browseCmd(configPath *string) *cobra.Command {
	var (
		search   string
		maxPages int
	)
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "print the configured query page by page until the collection is exhausted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(*configPath)
			if err != nil {
				return err
			}
			return browse(cmd.Context(), cfg, os.Stdout, search, maxPages)
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "search value")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "stop after this many pages (0 is unlimited)")
	return cmd
}

// browse writes every record that passes the search filter as a json line
func browse(ctx context.Context, cfg *Config, w io.Writer, search string, maxPages int) error {
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	e, s, err := cfg.Open(logger, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	opts := cfg.QueryOpts()
	if search != "" {
		opts = append(opts, pagestream.WithSearchValue(search))
	}
	if err := e.Init(ctx, cfg.Query.Path, cfg.Query.SortField, opts...); err != nil {
		return err
	}
	query, _ := e.Query()
	printed := 0
	for pages := 1; ; pages++ {
		data := e.Data()
		fresh := data[printed:]
		if query.Prepend {
			fresh = data[:len(data)-printed]
		}
		for _, record := range fresh {
			fmt.Fprintln(w, util.JSONString(record))
		}
		printed = len(data)
		if e.Done() || (maxPages > 0 && pages >= maxPages) {
			return nil
		}
		if err := e.LoadMore(ctx); err != nil {
			return err
		}
	}
}

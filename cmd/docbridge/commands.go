package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rzpsarthak13/docbridge/internal/logger"
	"github.com/rzpsarthak13/docbridge/internal/query"
	"github.com/rzpsarthak13/docbridge/pkg/docbridge"
)

// autoupdateCmd creates missing collections and indexes
var autoupdateCmd = &cobra.Command{
	Use:   "autoupdate [model...]",
	Short: "Create missing collections and indexes",
	Long:  `Create the collection and declared indexes of each named model, or of every model when none are named.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, c docbridge.Client) error {
			if err := c.Autoupdate(ctx, args...); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		})
	},
}

// isActualCmd reports schema drift
var isActualCmd = &cobra.Command{
	Use:   "isactual",
	Short: "Check whether the store matches the declared models",
	Long:  `Print true when every model has its collection and declared indexes, false otherwise. Exits non-zero on drift.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, c docbridge.Client) error {
			ok, err := c.IsActual(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			if !ok {
				return fmt.Errorf("schema drift detected")
			}
			return nil
		})
	},
}

// findCmd lists rows
var findCmd = &cobra.Command{
	Use:   "find [model]",
	Short: "List rows matching a filter",
	Long: `List rows of a model as JSON.

Examples:
  docbridge find users --where '{"age":{"gt":21}}' --order "age DESC" --limit 10
  docbridge find users --filter '{"where":{"name":{"like":"^a","options":"i"}},"skip":20}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := filterFromFlags(cmd)
		if err != nil {
			return err
		}
		return withClient(cmd.Context(), func(ctx context.Context, c docbridge.Client) error {
			rows, err := c.FindMany(ctx, args[0], f, nil)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rows)
		})
	},
}

// countCmd counts rows
var countCmd = &cobra.Command{
	Use:   "count [model]",
	Short: "Count rows matching a where clause",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		where, err := whereFromFlag(cmd)
		if err != nil {
			return err
		}
		return withClient(cmd.Context(), func(ctx context.Context, c docbridge.Client) error {
			n, err := c.Count(ctx, args[0], where)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		})
	},
}

func setupCommands() {
	findCmd.Flags().String("filter", "", "Full filter as JSON (where, order, skip, offset, limit)")
	findCmd.Flags().String("where", "", "Where clause as JSON")
	findCmd.Flags().StringSlice("order", nil, `Sort keys such as "age DESC"`)
	findCmd.Flags().Int("limit", 0, "Maximum number of rows")
	findCmd.Flags().Int("skip", 0, "Number of rows to skip")

	countCmd.Flags().String("where", "", "Where clause as JSON")

	rootCmd.AddCommand(autoupdateCmd, isActualCmd, findCmd, countCmd)
}

// withClient builds a client from the config file, flag and env overrides,
// connects it and runs fn.
func withClient(ctx context.Context, fn func(ctx context.Context, c docbridge.Client) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := docbridge.LoadConfig(v.GetString("config"))
	if err != nil {
		return err
	}
	if t := v.GetString("store-type"); t != "" {
		cfg.Store.Type = t
	}
	if u := v.GetString("store-url"); u != "" {
		cfg.Store.URL = u
	}
	if l := v.GetString("log-level"); l != "" {
		cfg.Log.Level = l
	}
	logger.Init(cfg.Log)

	c, err := docbridge.NewClient(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if path := v.GetString("models"); path != "" {
		if err := c.LoadModels(path); err != nil {
			return err
		}
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return fn(ctx, c)
}

func filterFromFlags(cmd *cobra.Command) (*docbridge.Filter, error) {
	f := &docbridge.Filter{}
	if raw, _ := cmd.Flags().GetString("filter"); raw != "" {
		m, err := decodeObject(raw, "filter")
		if err != nil {
			return nil, err
		}
		if f, err = query.ParseFilter(m); err != nil {
			return nil, err
		}
	}

	where, err := whereFromFlag(cmd)
	if err != nil {
		return nil, err
	}
	if where != nil {
		f.Where = where
	}
	if order, _ := cmd.Flags().GetStringSlice("order"); len(order) > 0 {
		f.Order = order
	}
	if cmd.Flags().Changed("limit") {
		f.Limit, _ = cmd.Flags().GetInt("limit")
	}
	if cmd.Flags().Changed("skip") {
		f.Skip, _ = cmd.Flags().GetInt("skip")
	}
	return f, nil
}

func whereFromFlag(cmd *cobra.Command) (map[string]any, error) {
	raw, _ := cmd.Flags().GetString("where")
	if raw == "" {
		return nil, nil
	}
	return decodeObject(raw, "where")
}

func decodeObject(raw, name string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("invalid --%s JSON: %w", name, err)
	}
	return m, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

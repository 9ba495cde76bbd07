package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/madness-retro/madness/internal/aggregate"
	"github.com/madness-retro/madness/internal/formatter"
	"github.com/madness-retro/madness/internal/schema"
)

var (
	facetInput     string
	facetSessionID string
	facetSessions  string
	facetSince     string
)

var facetCmd = &cobra.Command{
	Use:   "facet",
	Short: "Validate and cache session facets",
}

var facetValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a facet against the schema",
	Long: `Validate one facet document. Prints {valid, errors, warnings} and exits
with status 1 when the facet is invalid.`,
	Args: cobra.NoArgs,
	RunE: runFacetValidate,
}

var facetCacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Validate a facet and store it in the facet cache",
	Args:  cobra.NoArgs,
	RunE:  runFacetCache,
}

var facetListCachedCmd = &cobra.Command{
	Use:   "list-cached",
	Short: "List cached session IDs",
	Args:  cobra.NoArgs,
	RunE:  runFacetListCached,
}

var facetListUncachedCmd = &cobra.Command{
	Use:   "list-uncached",
	Short: "Filter a session list down to sessions without a cached facet",
	Long: `Read a JSON array of session objects (each with a session_id) and print
the ones whose facet is not cached yet, in input order.`,
	Args: cobra.NoArgs,
	RunE: runFacetListUncached,
}

var facetStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate statistics over cached facets",
	Args:  cobra.NoArgs,
	RunE:  runFacetStats,
}

func init() {
	facetValidateCmd.Flags().StringVar(&facetInput, "input", "-", "Input file or - for stdin")
	facetCacheCmd.Flags().StringVar(&facetInput, "input", "-", "Input file or - for stdin")
	facetCacheCmd.Flags().StringVar(&facetSessionID, "session-id", "", "Session ID for the cache file name (default: the facet's session_id)")
	facetListUncachedCmd.Flags().StringVar(&facetSessions, "sessions", "", "JSON array of session objects (- for stdin)")
	_ = facetListUncachedCmd.MarkFlagRequired("sessions")
	facetStatsCmd.Flags().StringVar(&facetSince, "since", "", "Only facets dated on or after YYYY-MM-DD")

	facetCmd.AddCommand(facetValidateCmd, facetCacheCmd, facetListCachedCmd, facetListUncachedCmd, facetStatsCmd)
	rootCmd.AddCommand(facetCmd)
}

func runFacetValidate(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, "", facetInput)
	if err != nil {
		return err
	}
	res := schema.NewValidator().Check(data)
	err = env.render(cmd.OutOrStdout(), res, func(w io.Writer) error {
		if res.Valid {
			fmt.Fprintln(w, env.palette.Judgment("validated")+": facet is valid")
		} else {
			fmt.Fprintln(w, env.palette.Judgment("ineffective")+": facet is invalid")
		}
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  error:   %s\n", e)
		}
		for _, warn := range res.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warn)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !res.Valid {
		return errSilent
	}
	return nil
}

type cacheView struct {
	Cached bool     `json:"cached"`
	Path   string   `json:"path,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

func runFacetCache(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, "", facetInput)
	if err != nil {
		return err
	}
	id := facetSessionID
	if id == "" {
		var doc struct {
			SessionID string `json:"session_id"`
		}
		_ = json.Unmarshal(data, &doc)
		id = doc.SessionID
	}

	path, err := env.facets().Cache(id, data)
	var invalid *schema.ValidationError
	if errors.As(err, &invalid) {
		view := cacheView{Errors: invalid.Errors}
		if rerr := env.render(cmd.OutOrStdout(), view, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "Not cached: %s\n", strings.Join(invalid.Errors, "; "))
			return err
		}); rerr != nil {
			return rerr
		}
		return errSilent
	}
	if err != nil {
		return err
	}
	return env.render(cmd.OutOrStdout(), cacheView{Cached: true, Path: path}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Cached %s\n", path)
		return err
	})
}

func runFacetListCached(cmd *cobra.Command, args []string) error {
	ids, err := env.facets().ListCached()
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []string{}
	}
	return env.render(cmd.OutOrStdout(), ids, func(w io.Writer) error {
		for _, id := range ids {
			fmt.Fprintln(w, id)
		}
		return nil
	})
}

func runFacetListUncached(cmd *cobra.Command, args []string) error {
	raw := []byte(facetSessions)
	if facetSessions == "-" {
		var err error
		if raw, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return err
		}
	}
	var sessions []json.RawMessage
	if err := json.Unmarshal(raw, &sessions); err != nil {
		return fmt.Errorf("parse --sessions: %w", err)
	}

	ids := make([]string, len(sessions))
	for i, s := range sessions {
		var head struct {
			SessionID string `json:"session_id"`
		}
		_ = json.Unmarshal(s, &head)
		ids[i] = head.SessionID
	}
	missing, err := env.facets().Uncached(ids)
	if err != nil {
		return err
	}
	want := make(map[string]bool, len(missing))
	for _, id := range missing {
		want[id] = true
	}

	out := []json.RawMessage{}
	for i, s := range sessions {
		if want[ids[i]] {
			out = append(out, s)
		}
	}
	return env.render(cmd.OutOrStdout(), out, func(w io.Writer) error {
		for _, id := range ids {
			if want[id] {
				fmt.Fprintln(w, id)
			}
		}
		return nil
	})
}

func runFacetStats(cmd *cobra.Command, args []string) error {
	facets, err := env.facets().Load(facetSince)
	if err != nil {
		return err
	}
	stats := aggregate.Compute(facets)
	return env.render(cmd.OutOrStdout(), stats, func(w io.Writer) error {
		fmt.Fprintf(w, "Sessions:      %d\n", stats.TotalSessions)
		fmt.Fprintf(w, "Loop rate:     %.2f\n", stats.LoopRate)
		fmt.Fprintf(w, "Avg duration:  %.1f min\n", stats.AvgDurationMin)
		fmt.Fprintf(w, "Files changed: %.0f\n\n", stats.TotalFilesChanged)
		if len(stats.FrictionTop5) == 0 {
			return nil
		}
		tbl := formatter.NewTable(w, "FRICTION", "COUNT")
		for _, f := range stats.FrictionTop5 {
			tbl.AddRow(f.Type, fmt.Sprint(f.Count))
		}
		return tbl.Render()
	})
}

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/madness-retro/madness/internal/formatter"
	"github.com/madness-retro/madness/internal/types"
)

var (
	evolutionEvent     string
	evolutionAssetID   string
	evolutionAssetType string
	evolutionDetails   string
	evolutionLimit     int
)

var evolutionCmd = &cobra.Command{
	Use:   "evolution",
	Short: "Append to or read the evolution log",
}

var evolutionLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Append one event",
	Long: `Append one event to <memory>/evolution.jsonl.

Event kinds: create, update, deprecate, merge, absorb, validate, no_match,
inject_reflection, session_validate.

Example:
  madness evolution log --event merge --asset-id flaky --details '{"into":"tests"}'`,
	Args: cobra.NoArgs,
	RunE: runEvolutionLog,
}

var evolutionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show logged events, newest last",
	Args:  cobra.NoArgs,
	RunE:  runEvolutionShow,
}

func init() {
	evolutionLogCmd.Flags().StringVar(&evolutionEvent, "event", "", "Event kind")
	evolutionLogCmd.Flags().StringVar(&evolutionAssetID, "asset-id", "", "Asset ID")
	evolutionLogCmd.Flags().StringVar(&evolutionAssetType, "asset-type", "", "Asset type (gene, sop, pref)")
	evolutionLogCmd.Flags().StringVar(&evolutionDetails, "details", "{}", "Event details as a JSON object")
	_ = evolutionLogCmd.MarkFlagRequired("event")
	_ = evolutionLogCmd.MarkFlagRequired("asset-id")

	evolutionShowCmd.Flags().StringVar(&evolutionAssetID, "asset-id", "", "Only events for this asset")
	evolutionShowCmd.Flags().IntVar(&evolutionLimit, "limit", 0, "Show only the last N events")

	evolutionCmd.AddCommand(evolutionLogCmd, evolutionShowCmd)
	rootCmd.AddCommand(evolutionCmd)
}

func runEvolutionLog(cmd *cobra.Command, args []string) error {
	kind, err := types.ParseEventKind(evolutionEvent)
	if err != nil {
		return err
	}
	e := types.EvolutionEvent{Event: kind, AssetID: evolutionAssetID}
	if evolutionAssetType != "" {
		t, err := types.ParseAssetType(evolutionAssetType)
		if err != nil {
			return err
		}
		e.AssetType = t
	}
	if err := json.Unmarshal([]byte(evolutionDetails), &e.Details); err != nil {
		return fmt.Errorf("parse --details: %w", err)
	}

	logged, err := env.events().Append(e)
	if err != nil {
		return err
	}
	return env.render(cmd.OutOrStdout(), logged, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Logged %s for %s (%s)\n", logged.Event, logged.AssetID, logged.ID)
		return err
	})
}

func runEvolutionShow(cmd *cobra.Command, args []string) error {
	log := env.events()
	var (
		events []types.EvolutionEvent
		err    error
	)
	if evolutionAssetID != "" {
		events, err = log.ForAsset(evolutionAssetID)
	} else {
		events, err = log.ReadAll()
	}
	if err != nil {
		return err
	}
	if evolutionLimit > 0 && len(events) > evolutionLimit {
		events = events[len(events)-evolutionLimit:]
	}
	if events == nil {
		events = []types.EvolutionEvent{}
	}
	return env.render(cmd.OutOrStdout(), events, func(w io.Writer) error {
		if len(events) == 0 {
			_, err := fmt.Fprintln(w, "No events logged.")
			return err
		}
		return eventTable(w, events)
	})
}

func eventTable(w io.Writer, events []types.EvolutionEvent) error {
	tbl := formatter.NewTable(w, "PERIOD", "EVENT", "ASSET", "JUDGMENT")
	for _, e := range events {
		tbl.AddRow(e.ReviewPeriod, string(e.Event), e.AssetID, env.palette.Judgment(e.DetailString("judgment")))
	}
	return tbl.Render()
}

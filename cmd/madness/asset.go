package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/madness-retro/madness/internal/formatter"
	"github.com/madness-retro/madness/internal/storage"
	"github.com/madness-retro/madness/internal/types"
)

var (
	assetType       string
	assetData       string
	assetDataFile   string
	assetID         string
	assetConfidence float64
	assetStatus     string
	exportMinConf   float64
)

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Manage genes, SOPs and prefs",
}

var assetCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an asset from a JSON draft",
	Long: `Create an asset. The ID is derived from the title; confidence starts
at 0.70 (provisional) and a create event is logged.

Examples:
  madness asset create --type gene --data '{"title":"Fix flaky tests","method":["rerun with seed"]}'
  madness asset create --type pref --data-file draft.json`,
	Args: cobra.NoArgs,
	RunE: runAssetCreate,
}

var assetUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Set an asset's confidence or status",
	Long: `Update an asset by ID. Status is re-derived from confidence afterwards,
so a status that disagrees with the confidence is overridden.`,
	Args: cobra.NoArgs,
	RunE: runAssetUpdate,
}

var assetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assets",
	Args:  cobra.NoArgs,
	RunE:  runAssetList,
}

var assetShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one asset and its evolution history",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssetShow,
}

var assetExportCmd = &cobra.Command{
	Use:   "export-portable",
	Short: "Export active assets for use in another project",
	Long: `Copy active assets at or above --min-confidence into
<memory>/exports/portable.json. Exported assets restart at 0.60 (provisional)
in the receiving project; the original confidence is kept alongside.`,
	Args: cobra.NoArgs,
	RunE: runAssetExport,
}

func init() {
	assetCreateCmd.Flags().StringVar(&assetType, "type", "", "Asset type (gene, sop, pref)")
	assetCreateCmd.Flags().StringVar(&assetData, "data", "", "Asset draft as JSON")
	assetCreateCmd.Flags().StringVar(&assetDataFile, "data-file", "", "Read the draft from a file (- for stdin)")
	_ = assetCreateCmd.MarkFlagRequired("type")
	assetCreateCmd.MarkFlagsOneRequired("data", "data-file")
	assetCreateCmd.MarkFlagsMutuallyExclusive("data", "data-file")

	assetUpdateCmd.Flags().StringVar(&assetID, "id", "", "Asset ID")
	assetUpdateCmd.Flags().Float64Var(&assetConfidence, "confidence", 0, "New confidence (0.0-1.0)")
	assetUpdateCmd.Flags().StringVar(&assetStatus, "status", "", "New status (active, provisional, deprecated)")
	_ = assetUpdateCmd.MarkFlagRequired("id")
	assetUpdateCmd.MarkFlagsOneRequired("confidence", "status")

	assetListCmd.Flags().StringVar(&assetType, "type", "", "Only this type (gene, sop, pref)")
	assetListCmd.Flags().StringVar(&assetStatus, "status", "", "Only this status")

	assetExportCmd.Flags().Float64Var(&exportMinConf, "min-confidence", storage.DefaultPortableMinConfidence, "Minimum confidence to export")

	assetCmd.AddCommand(assetCreateCmd, assetUpdateCmd, assetListCmd, assetShowCmd, assetExportCmd)
	rootCmd.AddCommand(assetCmd)
}

func runAssetCreate(cmd *cobra.Command, args []string) error {
	t, err := types.ParseAssetType(assetType)
	if err != nil {
		return err
	}
	data, err := readInput(cmd, assetData, assetDataFile)
	if err != nil {
		return err
	}
	draft, err := types.DecodeAsset(data, t)
	if err != nil {
		return err
	}
	asset, err := env.assets().Create(t, draft)
	if err != nil {
		return err
	}
	return env.render(cmd.OutOrStdout(), asset, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Created %s %s (confidence %.2f, %s)\n",
			asset.Type, asset.ID, asset.Confidence, env.palette.Status(string(asset.Status)))
		return err
	})
}

type updateView struct {
	Asset   *types.Asset   `json:"asset"`
	Changes map[string]any `json:"changes"`
}

func runAssetUpdate(cmd *cobra.Command, args []string) error {
	var change storage.AssetChange
	if cmd.Flags().Changed("confidence") {
		change.Confidence = &assetConfidence
	}
	if cmd.Flags().Changed("status") {
		s, err := types.ParseStatus(assetStatus)
		if err != nil {
			return err
		}
		change.Status = &s
	}
	asset, changes, err := env.assets().Update(assetID, change)
	if err != nil {
		return err
	}
	return env.render(cmd.OutOrStdout(), updateView{Asset: asset, Changes: changes}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Updated %s to v%d: confidence %.2f, %s\n",
			asset.ID, asset.Version, asset.Confidence, env.palette.Status(string(asset.Status)))
		return err
	})
}

func runAssetList(cmd *cobra.Command, args []string) error {
	var statuses []types.Status
	if assetStatus != "" {
		s, err := types.ParseStatus(assetStatus)
		if err != nil {
			return err
		}
		statuses = append(statuses, s)
	}

	var assets []*types.Asset
	if assetType != "" {
		t, err := types.ParseAssetType(assetType)
		if err != nil {
			return err
		}
		all, err := env.assets().Load(t)
		if err != nil {
			return err
		}
		for _, a := range all {
			if len(statuses) == 0 || a.Status == statuses[0] {
				assets = append(assets, a)
			}
		}
	} else {
		assets = env.assets().LoadAll(statuses...)
	}
	if assets == nil {
		assets = []*types.Asset{}
	}

	return env.render(cmd.OutOrStdout(), assets, func(w io.Writer) error {
		if len(assets) == 0 {
			_, err := fmt.Fprintln(w, "No assets found.")
			return err
		}
		tbl := formatter.NewTable(w, "ID", "TYPE", "CONF", "VER", "TITLE", "STATUS")
		tbl.SetMaxWidth(0, 32).SetMaxWidth(4, 48)
		for _, a := range assets {
			tbl.AddRow(a.ID, string(a.Type), fmt.Sprintf("%.2f", a.Confidence),
				strconv.Itoa(a.Version), a.Title, env.palette.Status(string(a.Status)))
		}
		return tbl.Render()
	})
}

type showView struct {
	Asset   *types.Asset           `json:"asset"`
	History []types.EvolutionEvent `json:"history"`
}

func runAssetShow(cmd *cobra.Command, args []string) error {
	asset, err := env.assets().Find(args[0])
	if err != nil {
		return err
	}
	history, err := env.events().ForAsset(asset.ID)
	if err != nil {
		return err
	}
	if history == nil {
		history = []types.EvolutionEvent{}
	}
	return env.render(cmd.OutOrStdout(), showView{Asset: asset, History: history}, func(w io.Writer) error {
		fmt.Fprintf(w, "%s (%s v%d)\n", asset.Title, asset.Type, asset.Version)
		fmt.Fprintf(w, "  ID:         %s\n", asset.ID)
		fmt.Fprintf(w, "  Confidence: %.2f\n", asset.Confidence)
		fmt.Fprintf(w, "  Status:     %s\n", env.palette.Status(string(asset.Status)))
		if asset.Trigger != "" {
			fmt.Fprintf(w, "  Trigger:    %s\n", asset.Trigger)
		}
		for i, step := range asset.Checklist().Texts() {
			fmt.Fprintf(w, "  %d. %s\n", i+1, step)
		}
		if len(history) == 0 {
			return nil
		}
		fmt.Fprintln(w)
		return eventTable(w, history)
	})
}

type exportView struct {
	Path   string         `json:"path"`
	Counts map[string]int `json:"counts"`
}

func runAssetExport(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(env.memoryDir); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", storage.ErrMemoryDirNotFound, env.memoryDir)
	}
	export, path, err := env.assets().ExportPortable(exportMinConf, env.retroDir)
	if err != nil {
		return err
	}
	view := exportView{Path: path, Counts: map[string]int{}}
	for k, list := range export.Assets {
		view.Counts[k] = len(list)
	}
	return env.render(cmd.OutOrStdout(), view, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Exported %d genes, %d sops, %d prefs to %s\n",
			view.Counts["genes"], view.Counts["sops"], view.Counts["prefs"], path)
		return err
	})
}

// readInput returns inline data, or the contents of file ("-" reads stdin).
func readInput(cmd *cobra.Command, inline, file string) ([]byte, error) {
	switch file {
	case "":
		return []byte(inline), nil
	case "-":
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(file)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mezhov/houser/internal/config"
)

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file.csv>",
	Short: "Upload a house listing dataset",
	Long: `Upload a CSV dataset of house listings. Training is queued
automatically once the upload is stored.

Example:
  houser upload ./listings.csv
  houser upload ./listings.csv --name spring-batch`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = filepath.Base(args[0])
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postCSV(cmd.Context(), "/datasets?name="+name, data)
		if err != nil {
			return err
		}

		var result struct {
			ID       string `json:"id"`
			RowCount int    `json:"row_count"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Uploaded %s (%d rows) as dataset %s; training queued", name, result.RowCount, result.ID)
		return nil
	},
}

func init() {
	uploadCmd.Flags().String("name", "", "dataset name (default: file name)")
}

// --- train ---

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a model now and wait for the result",
	Long: `Train candidate models on a dataset and register the best one.
Without --dataset the most recent upload is used.

Example:
  houser train
  houser train --dataset 4f7f... --algorithms linear,random_forest`,
	RunE: func(cmd *cobra.Command, args []string) error {
		datasetID, _ := cmd.Flags().GetString("dataset")
		algorithmsStr, _ := cmd.Flags().GetString("algorithms")

		req := map[string]any{}
		if datasetID != "" {
			req["dataset_id"] = datasetID
		}
		if algorithmsStr != "" {
			var algorithms []string
			for _, a := range strings.Split(algorithmsStr, ",") {
				algorithms = append(algorithms, strings.TrimSpace(a))
			}
			req["algorithms"] = algorithms
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/train", req)
		if err != nil {
			return err
		}

		var version struct {
			ID        string  `json:"id"`
			Algorithm string  `json:"algorithm"`
			MAE       float64 `json:"mae"`
			R2        float64 `json:"r2"`
		}
		if err := decodeJSON(resp, &version); err != nil {
			return err
		}

		printSuccess("Trained version %s: %s (MAE %.2f, R² %.3f)", version.ID, version.Algorithm, version.MAE, version.R2)
		return nil
	},
}

func init() {
	trainCmd.Flags().String("dataset", "", "dataset id to train on (default: latest)")
	trainCmd.Flags().String("algorithms", "", "comma-separated candidate algorithms")
}

// --- predict ---

var predictCmd = &cobra.Command{
	Use:   "predict <attr=value> ...",
	Short: "Estimate a price for one house",
	Long: `Estimate a price from house attributes given as key=value pairs.

Example:
  houser predict location=downtown area=1200 bedrooms=3 bathrooms=2 floors=1 year_built=1995 parking=true`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := make(map[string]string, len(args))
		for _, arg := range args {
			key, value, ok := strings.Cut(arg, "=")
			if !ok {
				return fmt.Errorf("invalid attribute %q, expected key=value", arg)
			}
			input[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/predict", map[string]any{"input": input})
		if err != nil {
			return err
		}

		var result struct {
			Price          float64 `json:"price"`
			ModelVersionID string  `json:"model_version_id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Printf("%s %.2f\n", colorize(colorBold, "Estimated price:"), result.Price)
		fmt.Printf("  (model version %s)\n", result.ModelVersionID)
		return nil
	},
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage trained model versions",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List model versions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/models?limit=%d", limit))
		if err != nil {
			return err
		}

		var versions []struct {
			ID        string  `json:"id"`
			Algorithm string  `json:"algorithm"`
			MAE       float64 `json:"mae"`
			R2        float64 `json:"r2"`
			TrainedAt string  `json:"trained_at"`
		}
		if err := decodeJSON(resp, &versions); err != nil {
			return err
		}

		if len(versions) == 0 {
			fmt.Println("No models trained yet.")
			return nil
		}

		for _, v := range versions {
			fmt.Printf("%s  %-18s MAE %-12.2f R² %-8.3f %s\n",
				colorize(colorCyan, v.ID[:8]),
				v.Algorithm,
				v.MAE,
				v.R2,
				v.TrainedAt,
			)
		}
		return nil
	},
}

var modelsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a model version (default: the active one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/models/active"
		if len(args) == 1 {
			path = "/models/" + args[0]
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var version any
		if err := decodeJSON(resp, &version); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(version)
	},
}

var modelsActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Make a model version the serving one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/models/"+args[0]+"/activate", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Activated model version %s", args[0])
		return nil
	},
}

func init() {
	modelsListCmd.Flags().Int("limit", 20, "maximum number of versions to list")
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsActivateCmd)
}

// --- datasets ---

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Inspect uploaded datasets",
}

var datasetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List datasets, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/datasets?limit=%d", limit))
		if err != nil {
			return err
		}

		var datasets []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			RowCount  int    `json:"row_count"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &datasets); err != nil {
			return err
		}

		if len(datasets) == 0 {
			fmt.Println("No datasets uploaded yet.")
			return nil
		}

		for _, d := range datasets {
			fmt.Printf("%s  %-30s %6d rows  %s\n",
				colorize(colorCyan, d.ID[:8]),
				d.Name,
				d.RowCount,
				d.CreatedAt,
			)
		}
		return nil
	},
}

var datasetsInfoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Show one dataset's metadata and columns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/datasets/"+args[0])
		if err != nil {
			return err
		}

		var info any
		if err := decodeJSON(resp, &info); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}

func init() {
	datasetsListCmd.Flags().Int("limit", 20, "maximum number of datasets to list")
	datasetsCmd.AddCommand(datasetsListCmd)
	datasetsCmd.AddCommand(datasetsInfoCmd)
}

// --- predictions ---

var predictionsCmd = &cobra.Command{
	Use:   "predictions",
	Short: "Show recent predictions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/predictions?limit=%d", limit))
		if err != nil {
			return err
		}

		var predictions []struct {
			ID             string  `json:"id"`
			ModelVersionID string  `json:"model_version_id"`
			Input          string  `json:"input"`
			Price          float64 `json:"price"`
			CreatedAt      string  `json:"created_at"`
		}
		if err := decodeJSON(resp, &predictions); err != nil {
			return err
		}

		if len(predictions) == 0 {
			fmt.Println("No predictions yet.")
			return nil
		}

		for _, p := range predictions {
			input := p.Input
			if len(input) > 60 {
				input = input[:60] + "..."
			}
			fmt.Printf("%s  %12.2f  %s  %s\n",
				colorize(colorCyan, p.ID[:8]),
				p.Price,
				p.CreatedAt,
				input,
			)
		}
		return nil
	},
}

func init() {
	predictionsCmd.Flags().Int("limit", 20, "maximum number of predictions to list")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/singlet-dev/singlet/internal/config"
)

var listFormat string

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List registered components",
	RunE:    runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listFormat, "format", "f", "text", "Output format (text, json)")
}

type listEntry struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	ShadowDOM bool   `json:"shadow_dom"`
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := newLogger(cfg)

	reg, err := buildRegistry(context.Background(), cfg, log)
	if err != nil {
		return err
	}

	var entries []listEntry
	for _, name := range reg.Names() {
		if def, ok := reg.Definition(name); ok {
			entries = append(entries, listEntry{Name: def.TagName, Path: def.SourcePath, ShadowDOM: def.UseShadowDOM})
		}
	}

	out := cmd.OutOrStdout()
	switch listFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "text":
		if len(entries) == 0 {
			fmt.Fprintln(out, "No components registered.")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(out, "<%s>\t%s\n", e.Name, e.Path)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", listFormat)
	}
}

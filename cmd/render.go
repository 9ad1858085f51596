package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/singlet-dev/singlet/internal/config"
)

var renderCmd = &cobra.Command{
	Use:     "render <name> [key=value...]",
	Aliases: []string{"r"},
	Short:   "Render a component to stdout",
	Long: `Render one registered component headlessly and print the resulting HTML.

Host attributes can be supplied as key=value pairs after the component name;
they seed the component's initial state the way markup attributes do.

Examples:
  singlet render my-counter
  singlet render my-counter count=5
  singlet render user-card name=Ada role=admin`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().String("source", "", "register the component from this source file first")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := newLogger(cfg)
	ctx := context.Background()

	name := args[0]
	if source, _ := cmd.Flags().GetString("source"); source != "" {
		cfg.Components.Register = append(cfg.Components.Register, config.ComponentEntry{Name: name, Path: source})
	}

	reg, err := buildRegistry(ctx, cfg, log)
	if err != nil {
		return err
	}
	if !reg.IsRegistered(name) {
		return fmt.Errorf("component %q is not registered; add it to .singlet.yml or pass --source", name)
	}

	attrs := make(map[string]string)
	for _, pair := range args[1:] {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("invalid attribute %q, expected key=value", pair)
		}
		attrs[key] = value
	}

	inst, err := reg.NewInstanceWithAttrs(name, attrs)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", name, err)
	}
	defer inst.Disconnect()

	rendered, err := inst.HTML()
	if err != nil {
		return fmt.Errorf("serializing %s: %w", name, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return nil
}

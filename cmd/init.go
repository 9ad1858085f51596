package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/singlet-dev/singlet/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init [name]",
	Aliases: []string{"i"},
	Short:   "Initialize a new Singlet project",
	Long: `Initialize a new Singlet project with the directory structure, a default
.singlet.yml, and an example component. If no name is provided, initializes
in the current directory.

Examples:
  singlet init                # Initialize in current directory
  singlet init my-project     # Initialize in new directory 'my-project'
  singlet init --minimal      # Skip the example component`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var initMinimal bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initMinimal, "minimal", false, "Minimal setup without the example component")
}

const exampleComponent = `<template>
  <h2>{title}</h2>
  <p>Count: {count}</p>
  <button onclick="increment()">+1</button>
  <button onclick="reset()">Reset</button>
</template>

<script>
  let title = "My Counter";
  let count = 0;

  function increment() {
    count++;
  }

  function reset() {
    count = 0;
  }
</script>

<style>
  h2 { margin-bottom: 0.5rem; }
  button { margin-right: 0.5rem; }
</style>
`

func runInit(cmd *cobra.Command, args []string) error {
	projectDir := "."
	if len(args) == 1 {
		projectDir = args[0]
		if err := os.MkdirAll(projectDir, 0o755); err != nil {
			return fmt.Errorf("creating project directory: %w", err)
		}
	}

	componentsDir := filepath.Join(projectDir, "components")
	if err := os.MkdirAll(componentsDir, 0o755); err != nil {
		return fmt.Errorf("creating components directory: %w", err)
	}

	cfgPath := filepath.Join(projectDir, ".singlet.yml")
	if err := config.WriteDefault(cfgPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", cfgPath)

	if !initMinimal {
		examplePath := filepath.Join(componentsDir, "my-counter.html")
		if _, err := os.Stat(examplePath); os.IsNotExist(err) {
			if err := os.WriteFile(examplePath, []byte(exampleComponent), 0o644); err != nil {
				return fmt.Errorf("writing example component: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", examplePath)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "\nNext steps:")
	fmt.Fprintln(cmd.OutOrStdout(), "  singlet serve       Start the preview server")
	fmt.Fprintln(cmd.OutOrStdout(), "  singlet list        List registered components")
	return nil
}

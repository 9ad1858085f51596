package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/singlet-dev/singlet/internal/config"
	"github.com/singlet-dev/singlet/internal/logging"
	"github.com/singlet-dev/singlet/internal/runtime"
)

// bindFlags binds flags from fs into viper config keys. The map is config
// key to flag name.
func bindFlags(fs *pflag.FlagSet, bindings map[string]string) {
	for key, flag := range bindings {
		if f := fs.Lookup(flag); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

// newLogger builds the process logger from configuration.
func newLogger(cfg *config.Config) logging.Logger {
	return logging.NewLogger(&logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
}

// buildRegistry registers every configured and discovered component and
// returns the populated registry. Individual registration failures are
// reported but do not abort startup.
func buildRegistry(ctx context.Context, cfg *config.Config, log logging.Logger) (*runtime.Registry, error) {
	reg := runtime.NewRegistry(runtime.WithLogger(log))

	entries := append([]config.ComponentEntry(nil), cfg.Components.Register...)
	discovered, err := cfg.DiscoverComponents()
	if err != nil {
		return nil, fmt.Errorf("component discovery: %w", err)
	}
	for _, d := range discovered {
		duplicate := false
		for _, e := range entries {
			if e.Name == d.Name {
				duplicate = true
				break
			}
		}
		if !duplicate {
			entries = append(entries, d)
		}
	}

	regs := make([]runtime.Registration, 0, len(entries))
	for _, e := range entries {
		regs = append(regs, runtime.Registration{Name: e.Name, Path: e.Path, UseShadowDOM: e.UseShadowDOM})
	}

	failed := 0
	for _, res := range reg.RegisterComponents(ctx, regs, cfg.Components.Concurrency) {
		if res.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "warning: %s (%s): %v\n", res.Name, res.Path, res.Err)
		}
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d components failed to register\n", failed, len(regs))
	}
	return reg, nil
}

package onboard

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/replyclaw/cmd/replyclaw/internal"
	"github.com/tinyland-inc/replyclaw/pkg/config"
	"github.com/tinyland-inc/replyclaw/pkg/suggest"
)

func NewOnboardCommand() *cobra.Command {
	var force bool
	var testProvider bool

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Create the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return onboardCmd(force, testProvider)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config")
	cmd.Flags().BoolVar(&testProvider, "test-provider", false, "Verify the completion provider after writing the config")

	return cmd
}

func onboardCmd(force, testProvider bool) error {
	path := internal.GetConfigPath()
	if _, err := os.Stat(path); err == nil && !force {
		fmt.Printf("Config already exists at %s (use --force to overwrite)\n", path)
		return nil
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(path, cfg); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	fmt.Printf("✓ Config written to %s\n", path)
	fmt.Println("Edit it to set your completion provider (llm.api_base, llm.api_key, llm.model)")

	if testProvider {
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return err
		}
		client := suggest.NewClient(cfg.LLM.APIBase, cfg.LLM.APIKey, cfg.LLM.Model,
			time.Duration(cfg.LLM.TimeoutSeconds*float64(time.Second)))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := client.TestConnection(ctx); err != nil {
			return fmt.Errorf("provider check failed: %w", err)
		}
		fmt.Println("✓ Provider reachable")
	}

	return nil
}

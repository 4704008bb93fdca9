package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/CEE-TEE/ggshield/internal/config"
	"github.com/CEE-TEE/ggshield/internal/redact"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect ggshield configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		cfg, err := config.Load(dir, nil)
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, src := range cfg.Sources {
			fmt.Fprintf(out, "# from %s\n", src)
		}
		if cfg.APIKey != "" {
			fmt.Fprintf(out, "api-key: %s\n", redact.Censor(cfg.APIKey))
		}
		fmt.Fprint(out, string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

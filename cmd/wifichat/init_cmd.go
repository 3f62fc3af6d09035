package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var forceInit bool

// initCmd writes the effective configuration to --config.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file",
	Long:  "Write the defaults, merged with the environment and the given flags, to the --config path.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configFile); err == nil && !forceInit {
			return fmt.Errorf("%s already exists, use --force to overwrite it", configFile)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Save(configFile); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")
}

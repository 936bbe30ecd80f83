package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/tribunal/internal/config"
)

var flagForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tribunal configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		if err := config.Init(path, flagForce); err != nil {
			return err
		}
		newUI(cmd).Success("Config file created at %s", path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a scalar configuration value in the config file. Judges are edited in the file directly.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}

		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}

		if err := config.SetField(&cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(path, cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		newUI(cmd).Success("Set %s = %s", args[0], args[1])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List settable keys and their environment variables",
	RunE: func(cmd *cobra.Command, args []string) error {
		table := newUI(cmd).Table([]string{"KEY", "ENV"})
		for _, k := range config.Keys() {
			if err := table.Append([]string{k, config.EnvVar(k)}); err != nil {
				return err
			}
		}
		return table.Render()
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configKeysCmd)
	configInitCmd.Flags().BoolVar(&flagForce, "force", false, "Overwrite an existing config file")
}

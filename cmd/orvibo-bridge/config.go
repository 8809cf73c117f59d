package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/orvibo-bridge/internal/config"
)

// Config command flags
var (
	initKey   string
	initForce bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configNicknameCmd)

	configCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: user config dir)")

	configInitCmd.Flags().StringVar(&initKey, "key", "", "16 byte pre-shared key to store")
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the bridge configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default settings",
	Long: `Write a config file with default settings and the given pre-shared key.

An existing file is left alone unless --force is given.`,
	Example: `  # Create the default config file
  orvibo-bridge config init --key khggd54865SNJHGF

  # Write to a specific path
  orvibo-bridge config init --key khggd54865SNJHGF --config ./bridge.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configNicknameCmd = &cobra.Command{
	Use:   "nickname <uid> [name]",
	Short: "Set or clear the display name of a device",
	Long: `Set the name reported for a device instead of "unknown".

Without a name the nickname is removed. The bridge reads nicknames at
startup.`,
	Example: `  orvibo-bridge config nickname abc123 "Bedroom blind"
  orvibo-bridge config nickname abc123`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConfigNickname,
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}

	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("cannot access config file: %w", err)
		}
	}

	cfg := config.New()
	cfg.PreSharedKey = initKey
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return err
	}

	fmt.Printf("✓ Wrote %s\n", path)
	return nil
}

func runConfigNickname(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}

	cfg, err := config.Read(path)
	if err != nil {
		return err
	}

	uid, name := args[0], ""
	if len(args) == 2 {
		name = args[1]
	}
	cfg.SetNickname(uid, name)

	if err := cfg.Save(path); err != nil {
		return err
	}

	if name == "" {
		fmt.Printf("✓ Cleared nickname of %s\n", uid)
	} else {
		fmt.Printf("✓ %s is now %q\n", uid, name)
	}
	return nil
}

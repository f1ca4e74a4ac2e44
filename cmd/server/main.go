// Package main provides the Aegis server entry point.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aegisgate/aegis/internal/auth"
	"github.com/aegisgate/aegis/internal/auth/plugin/basic"
	"github.com/aegisgate/aegis/internal/config"
	"github.com/aegisgate/aegis/internal/server"
	"github.com/aegisgate/aegis/internal/version"
)

var (
	configFile string
	rootCmd    = &cobra.Command{
		Use:   "aegis-server",
		Short: "Aegis security gateway",
		Long:  `Aegis is a multi-scheme authentication gateway with a versioned, live-editable security config.`,
		RunE:  run,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "server-config.yaml", "config file path")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Full())
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultServerConfig()
			if err := config.LoadAndValidate(configFile, &cfg); err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}
			fmt.Println("Configuration is valid")
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "schemes",
		Short: "List registered authentication scheme plugins",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range auth.ListPlugins() {
				fmt.Println(name)
			}
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "hashpw <password>",
		Short: "Hash a password for use in a basic scheme credentials block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := basic.HashPassword(args[0])
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			fmt.Println(hash)
			return nil
		},
	})
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultServerConfig()
	if err := config.LoadAndValidate(configFile, &cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	srv, err := server.New(&cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=v1.0.0".
var version = "dev"

func getVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

var (
	flagDir      string
	flagProvider string
	flagAddr     string
	flagPretty   bool
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "agentd",
	Short: "agentd — backend for a browser-based AI coding IDE",
	Long:  "agentd drives a browser IDE's session management, turn engine, tool execution, and checkpoint/revert over WebSocket and HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "default workspace root for sessions that omit working_directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "LLM provider (anthropic|openai); default resolved from config/env")
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "", "listen address (default: config ListenAddr, or :8420)")
	rootCmd.PersistentFlags().BoolVar(&flagPretty, "pretty", false, "pretty-print logs to a terminal instead of JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentd %s\n", getVersion())
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agentd HTTP/WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

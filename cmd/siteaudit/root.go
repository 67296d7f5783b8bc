package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "siteaudit",
		Short: "Find issues in website sources and live sites",
		Long: `siteaudit audits a source repository (local directory or git URL) or a
running website and reports HTML, CSS, JavaScript, SEO, accessibility,
performance and security issues with their location and a suggested fix.

Onion sites are fetched through Tor: an embedded daemon is started unless
--tor-proxy names an existing proxy.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and exits with the status of exitCode.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 when a scan reported an issue at or above --fail-on, 1 for
// any other error.
func exitCode(err error) int {
	if errors.Is(err, ErrThresholdExceeded) {
		return 2
	}
	return 1
}

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/tlsecho/internal/config"
	"github.com/muurk/tlsecho/internal/discovery"
	"github.com/muurk/tlsecho/internal/logging"
	"github.com/muurk/tlsecho/internal/ui"
	"github.com/muurk/tlsecho/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tlsecho %s (commit: %s)\n", version.Version, version.Commit)
		},
	}
}

func newConfigCmd() *cobra.Command {
	var writePath string

	cmd := &cobra.Command{
		Use:   "config [--write path] [-- tlsecho flags...]",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration tlsecho would run with, after merging flags,
TLSECHO_* environment variables and the config file.

Flags after -- are interpreted exactly as on the main command. With --write the
result is saved as a config file instead of printed.`,
		Example: `  # Show the defaults merged with the environment
  tlsecho config

  # Save a TLS 1.3 server configuration as the default config file
  tlsecho config --write ~/.config/tlsecho/config.yaml -- --tls tls13 --cert server.pem --key server.key`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec := config.Default()
			if err := config.ParseArgs(args, rec, cmd.OutOrStdout()); err != nil {
				if errors.Is(err, config.ErrHelp) {
					return nil
				}
				return err
			}
			if err := config.Validate(rec); err != nil {
				return err
			}

			if writePath != "" {
				if err := config.WriteFile(writePath, rec); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", writePath)
				return nil
			}

			data, err := rec.Dump()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&writePath, "write", "", "Write the configuration to this file instead of printing it")
	return cmd
}

func newDiscoverCmd() *cobra.Command {
	var (
		timeout  time.Duration
		logLevel string
	)

	cmd := &cobra.Command{
		Use:          "discover",
		Short:        "Find tlsecho servers advertised over mDNS",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Initialize(logLevel); err != nil {
				return err
			}
			defer logging.Sync()

			scanner := discovery.NewScanner()
			scanner.Timeout = timeout
			services, err := scanner.Scan(cmd.Context())
			if err != nil {
				return err
			}

			items := make([]ui.ListItem, 0, len(services))
			for _, svc := range services {
				detail := fmt.Sprintf("--connect %s --tls %s", svc.Addr(), svc.Encryption)
				if svc.Version != "" {
					detail += "  (" + svc.Version + ")"
				}
				items = append(items, ui.ListItem{Name: svc.Instance, Detail: detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderListing("tlsecho servers", items, "No servers answered within "+timeout.String(), ui.GetTerminalWidth()))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", discovery.DefaultScanTimeout, "How long to wait for answers")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	return cmd
}

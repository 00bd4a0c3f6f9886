// Tlsecho is a multi-client TCP/TLS echo server and interactive client.
//
// Without a subcommand every argument goes to the startup state machine:
//
//	tlsecho --port 4433 --tls tls13 --cert server.pem --key server.key
//	tlsecho --connect echo.example.com:4433 --tls tls13 --peer-ca ca.pem
//
// See 'tlsecho --help' for the full flag list.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/tlsecho/internal/app"
	"github.com/muurk/tlsecho/internal/config"
	"github.com/muurk/tlsecho/internal/fsm"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the command tree and returns the process exit code.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	code := config.ExitSuccess
	root := newRootCmd(&code)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return config.ExitFailure
	}
	return code
}

func newRootCmd(code *int) *cobra.Command {
	root := &cobra.Command{
		Use:   "tlsecho [flags]",
		Short: "Multi-client TCP/TLS echo server and client",
		Long: `A TCP/TLS echo server with a fixed connection capacity, and an interactive
client for talking to it.

Without --connect, tlsecho listens and echoes every byte back to its sender.
With --connect address:port it runs as a client instead. Run 'tlsecho --help'
for the flag list.`,
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := &app.Runner{
				Stdin:  cmd.InOrStdin(),
				Stdout: cmd.OutOrStdout(),
			}
			machine := fsm.New(fsm.Config{
				Args:   args,
				Server: runner,
				Client: runner,
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			})
			runner.Registrar = machine
			*code = machine.Run(cmd.Context())
			return nil
		},
	}

	// Disable automatic completion command generation
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newVersionCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newDiscoverCmd())
	return root
}

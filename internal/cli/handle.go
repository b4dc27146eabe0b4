package cli

import (
	"fmt"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memohai/smsrouter/internal/boot"
	"github.com/memohai/smsrouter/internal/transcript"
)

const defaultCLITransport = "cli"

// NewHandleCommand creates the handle command.
func NewHandleCommand(rootOpts *RootOptions) *cobra.Command {
	var ident, transportName string
	cmd := &cobra.Command{
		Use:          "handle <text>...",
		Short:        "Route a text message and print the transcript",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ident == "" {
				ident = currentUser()
			}
			ctx := cmd.Context()
			e, err := rootOpts.open(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			gw := boot.NewLoopback(e.log, transportName, e.store, e.router, true, nil)
			msg, err := gw.Receive(ctx, ident, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("handle: %w", err)
			}
			return transcript.Write(ctx, cmd.OutOrStdout(), e.store, msg)
		},
	}
	cmd.Flags().StringVar(&ident, "ident", "", "sender ident (default current user)")
	cmd.Flags().StringVar(&transportName, "transport", defaultCLITransport, "transport name recorded in the connection uri")
	return cmd
}

func currentUser() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return "operator"
	}
	return u.Username
}

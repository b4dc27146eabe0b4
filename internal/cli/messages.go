package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/memohai/smsrouter/internal/boot"
	"github.com/memohai/smsrouter/internal/message"
	"github.com/memohai/smsrouter/internal/transcript"
	"github.com/memohai/smsrouter/internal/transport/loopback"
)

// DumpedMessage is one incoming message in the dump format.
type DumpedMessage struct {
	URI  string  `yaml:"uri"`
	Time *string `yaml:"time"`
	Text string  `yaml:"text"`
}

// NewDumpCommand creates the dumpmsgs command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "dumpmsgs",
		Short:        "Dump all incoming messages as YAML, newest first",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := rootOpts.open(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			msgs, err := e.store.ListIncoming(ctx)
			if err != nil {
				return err
			}
			out := make([]DumpedMessage, 0, len(msgs))
			for _, msg := range msgs {
				d := DumpedMessage{URI: msg.URI, Text: msg.Text}
				if !msg.Time.IsZero() {
					stamp := msg.Time.Format(time.RFC3339Nano)
					d.Time = &stamp
				}
				out = append(out, d)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

// NewLoadCommand creates the loadmsgs command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "loadmsgs <file>",
		Short:        "Route every message of a YAML dump and print the transcripts",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := readDump(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := rootOpts.open(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			gateways := map[string]*loopback.Gateway{}
			for i, entry := range entries {
				name, ident, ok := message.SplitURI(entry.URI)
				if !ok || name == "" || ident == "" {
					return fmt.Errorf("entry %d: bad uri %q", i+1, entry.URI)
				}
				var at time.Time
				if entry.Time != nil && strings.TrimSpace(*entry.Time) != "" {
					at, err = time.Parse(time.RFC3339Nano, strings.TrimSpace(*entry.Time))
					if err != nil {
						return fmt.Errorf("entry %d: %w", i+1, err)
					}
				}
				gw, ok := gateways[name]
				if !ok {
					gw = boot.NewLoopback(e.log, name, e.store, e.router, true, nil)
					gateways[name] = gw
				}
				msg, err := gw.ReceiveAt(ctx, ident, entry.Text, at)
				if err != nil {
					return fmt.Errorf("entry %d: %w", i+1, err)
				}
				if err := transcript.Write(ctx, cmd.OutOrStdout(), e.store, msg); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func readDump(path string) ([]DumpedMessage, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []DumpedMessage
	if err := yaml.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return entries, nil
}

// Package cli implements smsctl, the operator command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/memohai/smsrouter/internal/boot"
	"github.com/memohai/smsrouter/internal/config"
	"github.com/memohai/smsrouter/internal/logger"
	"github.com/memohai/smsrouter/internal/router"
	"github.com/memohai/smsrouter/internal/store"
	"github.com/memohai/smsrouter/internal/version"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for smsctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "smsctl",
		Short:   "Operate the SMS router",
		Long:    "Feed messages through the routing table and move the message trail in and out of storage.",
		Version: version.GetInfo(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			if opts.ConfigPath == "" {
				opts.ConfigPath = os.Getenv("CONFIG_PATH")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default $CONFIG_PATH or config.toml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr at debug level")

	cmd.AddCommand(NewHandleCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// env is what a command needs to touch the message trail.
type env struct {
	cfg    config.Config
	log    *slog.Logger
	store  store.Store
	router *router.Router
}

func (o *RootOptions) logger(errOut io.Writer) *slog.Logger {
	if o.Verbose {
		return logger.New(errOut, "debug", "text")
	}
	return logger.New(errOut, "warn", "text")
}

func (o *RootOptions) config() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// open loads the configuration and opens storage. withRouter also builds
// the routing table and records its routes.
func (o *RootOptions) open(ctx context.Context, cmd *cobra.Command, withRouter bool) (*env, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	log := o.logger(cmd.ErrOrStderr())
	st, err := store.Open(ctx, log, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	e := &env{cfg: cfg, log: log, store: st}
	if !withRouter {
		return e, nil
	}
	e.router, err = boot.NewRouter(log, cfg, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := e.router.SyncRoutes(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return e, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

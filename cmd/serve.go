// File: cmd/serve.go
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hevesm/linkvisitor/internal/config"
	"github.com/hevesm/linkvisitor/internal/observability"
	"github.com/hevesm/linkvisitor/internal/scheduler"
	"github.com/hevesm/linkvisitor/internal/server"
)

// newServeCmd creates the long-running `serve` command: HTTP control surface
// plus the daily schedule trigger.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP control surface and the scheduled visit trigger",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlag("server.listen_addr", cmd.Flags().Lookup("listen"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			resolved, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			runner := buildRunner(logger, resolved)
			srv := server.New(logger, resolved.Server, runner, Version)

			g, gctx := errgroup.WithContext(ctx)

			// A failed or aborted run never takes the server down; the
			// scheduler and control surface keep serving until a signal.
			if resolved.Schedule.Enabled {
				sched, err := scheduler.New(gctx, logger, resolved.Schedule, runner)
				if err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
			}

			g.Go(func() error { return srv.Start(gctx) })
			return g.Wait()
		},
	}

	serveCmd.Flags().String("listen", "", "listen address for the control surface (e.g. :8080)")
	return serveCmd
}

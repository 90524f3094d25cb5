// File: cmd/run.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hevesm/linkvisitor/internal/auth"
	"github.com/hevesm/linkvisitor/internal/browser"
	"github.com/hevesm/linkvisitor/internal/config"
	"github.com/hevesm/linkvisitor/internal/notify"
	"github.com/hevesm/linkvisitor/internal/observability"
	"github.com/hevesm/linkvisitor/internal/visitor"
)

// buildRunner wires the visit loop to its production collaborators.
func buildRunner(logger *zap.Logger, cfg *config.Config) *visitor.Runner {
	launcher := browser.NewChromeLauncher(logger, cfg.Browser)
	detector := auth.NewDetector()
	sink := notify.NewWebhookSink(logger, cfg.Notify)
	return visitor.NewRunner(logger, cfg.Visit, launcher, detector, sink)
}

// newRunCmd creates the one-shot `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Visit the configured profile URLs once and exit",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so CLI flags override the
			// config file and environment variables.
			if err := viper.BindPFlag("visit.cookie_file", cmd.Flags().Lookup("cookie-file")); err != nil {
				return err
			}
			return viper.BindPFlag("visit.profile_urls", cmd.Flags().Lookup("profile-url"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-resolve the config now that flags are bound.
			resolved, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if len(resolved.Visit.ProfileURLs) == 0 {
				return fmt.Errorf("no profile URLs configured; set visit.profile_urls or pass --profile-url")
			}

			runner := buildRunner(logger, resolved)
			summary, err := runner.Run(ctx)
			if err != nil {
				return err
			}

			if summary.Error != "" {
				return fmt.Errorf("run failed: %s", summary.Error)
			}
			if summary.Aborted {
				return fmt.Errorf("run aborted after %d visit(s): session is no longer authenticated", summary.Total)
			}
			logger.Info("Run complete.",
				zap.Int("successes", summary.SuccessCount),
				zap.Int("failures", summary.FailureCount),
			)
			return nil
		},
	}

	runCmd.Flags().String("cookie-file", "", "path to the saved cookie set (JSON array)")
	runCmd.Flags().StringSlice("profile-url", nil, "profile URL to visit (repeatable)")
	return runCmd
}

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// NewExpireCommand creates the expire subcommand.
func NewExpireCommand(rootOpts *RootOptions) *cobra.Command {
	var nowFlag string

	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Delete artifacts whose retention period has passed",
		Long: `Expire runs one retention sweep: temporary artifacts older than 90 days
and standard artifacts older than 7 years are deleted with the reason
"retention_policy_expired". Held and indefinite artifacts are never touched.`,
		Example: `  vault expire
  vault expire --now 2031-01-01T00:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if nowFlag != "" {
				t, err := time.Parse(time.RFC3339Nano, nowFlag)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --now", err)
				}
				now = t
			}

			p := newPrinter(rootOpts, cmd.OutOrStdout())
			return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				count, err := a.vault.ExpireOldArtifacts(cmd.Context(), now)
				if err != nil && count == 0 {
					return exitErrorFor("expire artifacts", err)
				}
				if perr := p.ok(map[string]int{"expired": count}, func(w io.Writer) {
					fmt.Fprintf(w, "expired %d artifacts\n", count)
				}); perr != nil {
					return perr
				}
				if err != nil {
					return exitErrorFor("expire artifacts", err)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&nowFlag, "now", "", "RFC 3339 evaluation time (defaults to now)")
	return cmd
}

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewHoldCommand creates the hold subcommand.
func NewHoldCommand(rootOpts *RootOptions) *cobra.Command {
	var caseID string

	cmd := &cobra.Command{
		Use:   "hold <artifact-id>...",
		Short: "Place artifacts under legal hold",
		Long: `Hold moves each existing artifact to the legal_hold retention class and
records the case id. Unknown ids are skipped. Holds cannot be released.`,
		Example: `  vault hold artifact_0123456789abcdef artifact_fedcba9876543210 --case CASE-2026-001`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(rootOpts, cmd.OutOrStdout())
			return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				protected, err := a.vault.ApplyLegalHold(cmd.Context(), args, caseID)
				if err != nil && protected == 0 {
					return exitErrorFor("apply legal hold", err)
				}
				if perr := p.ok(map[string]any{"case_id": caseID, "protected": protected}, func(w io.Writer) {
					fmt.Fprintf(w, "%d artifacts held under case %s\n", protected, caseID)
				}); perr != nil {
					return perr
				}
				if err != nil {
					return exitErrorFor("apply legal hold", err)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "legal case id (required)")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// DeleteResult is the structured output of delete.
type DeleteResult struct {
	ArtifactID string `json:"artifact_id"`
	Deleted    bool   `json:"deleted"`
}

// NewDeleteCommand creates the delete subcommand.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var reason, approver string

	cmd := &cobra.Command{
		Use:   "delete <artifact-id>",
		Short: "Delete an artifact unless it is under legal hold",
		Long: `Delete removes an artifact and records the reason and approver in the
access log. Artifacts under legal hold are never deleted; the refusal is
recorded and the command exits with status 1, as it does for unknown ids.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			p := newPrinter(rootOpts, cmd.OutOrStdout())
			return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				deleted, err := a.vault.Delete(cmd.Context(), id, reason, approver)
				if err != nil {
					return exitErrorFor("delete artifact", err)
				}

				status := "deleted"
				if !deleted {
					status = "not_deleted"
				}
				if err := p.result(status, DeleteResult{ArtifactID: id, Deleted: deleted}, func(w io.Writer) {
					if deleted {
						p.success("deleted %s", id)
					} else {
						p.warning("%s not deleted: unknown id or legal hold (see `vault log --artifact %s`)", id, id)
					}
				}); err != nil {
					return err
				}
				if !deleted {
					return NewExitError(ExitFailure, fmt.Sprintf("artifact %s was not deleted", id))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason for deletion (required)")
	cmd.Flags().StringVar(&approver, "approver", "", "who approved the deletion")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

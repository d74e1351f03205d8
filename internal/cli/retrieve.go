package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"receiptvault/internal/vault/models"
)

// NewRetrieveCommand creates the retrieve subcommand.
func NewRetrieveCommand(rootOpts *RootOptions) *cobra.Command {
	var accessor string

	cmd := &cobra.Command{
		Use:   "retrieve <artifact-id>",
		Short: "Retrieve an artifact and record the access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(rootOpts, cmd.OutOrStdout())
			return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				artifact, err := a.vault.Retrieve(cmd.Context(), args[0], accessor)
				if err != nil {
					return exitErrorFor("retrieve artifact", err)
				}
				if artifact == nil {
					if p.structured() {
						if err := p.result("not_found", map[string]string{"artifact_id": args[0]}, nil); err != nil {
							return err
						}
					}
					return NewExitError(ExitFailure, fmt.Sprintf("artifact %s not found", args[0]))
				}
				return p.ok(artifact, func(w io.Writer) {
					writeArtifact(w, artifact)
				})
			})
		},
	}

	cmd.Flags().StringVar(&accessor, "accessor", "", "identity of the caller, recorded in the access log")
	return cmd
}

func writeArtifact(w io.Writer, a *models.Artifact) {
	fmt.Fprintf(w, "id:         %s\n", a.ID)
	fmt.Fprintf(w, "type:       %s\n", a.Type)
	if a.Owner != "" {
		fmt.Fprintf(w, "owner:      %s\n", a.Owner)
	}
	fmt.Fprintf(w, "retention:  %s\n", a.RetentionClass)
	fmt.Fprintf(w, "event time: %s\n", models.FormatTime(a.EventTime))
	fmt.Fprintf(w, "created:    %s\n", models.FormatTime(a.CreatedAt))
	if len(a.Tags) > 0 {
		fmt.Fprintf(w, "tags:       %s\n", strings.Join(a.Tags, ", "))
	}
	fmt.Fprintf(w, "accessed:   %d\n", a.AccessedCount)
	if len(a.Context) > 0 {
		if raw, err := a.Context.MarshalJSON(); err == nil {
			fmt.Fprintf(w, "context:    %s\n", raw)
		}
	}
	fmt.Fprintf(w, "\n%s\n", a.Content)
}

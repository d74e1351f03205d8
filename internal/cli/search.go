package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"receiptvault/internal/vault/models"
)

// NewSearchCommand creates the search subcommand.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		owner, artifactType, retention string
		tags                           []string
		limit                          int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "List artifacts matching a filter, oldest first",
		Long: `Search returns artifacts matching every given filter, ordered by creation
time. --tag matches artifacts carrying any of the given tags. Search does not
count as an access and is not recorded in the access log.`,
		Example: `  vault search --owner u1 --tag apology
  vault search --retention legal_hold --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := models.SearchFilter{
				Owner:          owner,
				Type:           models.ArtifactType(artifactType),
				RetentionClass: models.RetentionClass(retention),
				Tags:           tags,
				Limit:          limit,
			}
			p := newPrinter(rootOpts, cmd.OutOrStdout())
			return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				results, err := a.vault.Search(cmd.Context(), filter)
				if err != nil {
					return exitErrorFor("search artifacts", err)
				}
				return p.ok(results, func(w io.Writer) {
					writeArtifactTable(w, results)
				})
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owning user id")
	cmd.Flags().StringVar(&artifactType, "type", "", "artifact type")
	cmd.Flags().StringVar(&retention, "retention", "", "retention class")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag (repeatable, any match)")
	cmd.Flags().IntVar(&limit, "limit", models.DefaultSearchLimit, "maximum results")
	return cmd
}

func writeArtifactTable(w io.Writer, artifacts []*models.Artifact) {
	if len(artifacts) == 0 {
		fmt.Fprintln(w, "no artifacts")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tOWNER\tRETENTION\tCREATED\tACCESSED")
	for _, a := range artifacts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			a.ID, a.Type, a.Owner, a.RetentionClass, models.FormatTime(a.CreatedAt), a.AccessedCount)
	}
	_ = tw.Flush()
}

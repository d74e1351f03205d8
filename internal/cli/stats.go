package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"receiptvault/internal/vault/models"
)

// NewStatsCommand creates the stats subcommand.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show vault statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(rootOpts, cmd.OutOrStdout())
			return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				stats, err := a.vault.Statistics(cmd.Context())
				if err != nil {
					return exitErrorFor("compute statistics", err)
				}
				return p.ok(stats, func(w io.Writer) {
					writeStats(w, stats)
				})
			})
		},
	}
}

func writeStats(w io.Writer, s *models.Statistics) {
	fmt.Fprintf(w, "artifacts:        %d\n", s.TotalArtifacts)
	fmt.Fprintf(w, "total accesses:   %d\n", s.TotalAccesses)
	fmt.Fprintf(w, "average accesses: %.2f\n", s.AverageAccessesPerArtifact)
	fmt.Fprintf(w, "access log size:  %d\n", s.AccessLogSize)

	if len(s.ByType) > 0 {
		fmt.Fprintln(w, "by type:")
		types := make([]string, 0, len(s.ByType))
		for t := range s.ByType {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(w, "  %-22s %d\n", t, s.ByType[models.ArtifactType(t)])
		}
	}
	if len(s.ByRetentionClass) > 0 {
		fmt.Fprintln(w, "by retention class:")
		classes := make([]string, 0, len(s.ByRetentionClass))
		for c := range s.ByRetentionClass {
			classes = append(classes, string(c))
		}
		sort.Strings(classes)
		for _, c := range classes {
			fmt.Fprintf(w, "  %-22s %d\n", c, s.ByRetentionClass[models.RetentionClass(c)])
		}
	}
}

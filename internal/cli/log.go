package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"receiptvault/internal/vault/audit"
	"receiptvault/internal/vault/models"
)

type eventFilterFlags struct {
	artifactID string
	eventType  string
	since      string
}

func (f *eventFilterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.artifactID, "artifact", "", "only events for this artifact id")
	cmd.Flags().StringVar(&f.eventType, "type", "", "only events of this type (STORE, RETRIEVE, DELETE, DELETE_DENIED, LEGAL_HOLD_APPLIED)")
	cmd.Flags().StringVar(&f.since, "since", "", "only events at or after this RFC 3339 time")
}

func (f *eventFilterFlags) filter() (models.EventFilter, error) {
	filter := models.EventFilter{ArtifactID: f.artifactID}
	if f.eventType != "" {
		t := models.EventType(strings.ToUpper(f.eventType))
		if !t.IsValid() {
			return filter, fmt.Errorf("unknown event type %q", f.eventType)
		}
		filter.Type = t
	}
	if f.since != "" {
		t, err := time.Parse(time.RFC3339Nano, f.since)
		if err != nil {
			return filter, fmt.Errorf("--since: %w", err)
		}
		filter.Since = t
	}
	return filter, nil
}

// NewLogCommand creates the log subcommand.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &eventFilterFlags{}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show access log events in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid filter", err)
			}
			p := newPrinter(rootOpts, cmd.OutOrStdout())
			return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				events := a.vault.AccessLog(cmd.Context(), filter)
				return p.ok(events, func(w io.Writer) {
					writeEventTable(w, events)
				})
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func writeEventTable(w io.Writer, events []models.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "no events")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tTYPE\tARTIFACT\tUSER\tACCESSOR\tDETAILS")
	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Seq, models.FormatTime(e.Timestamp), e.Type, e.ArtifactID, e.UserID, e.Accessor, formatDetails(e.Metadata))
	}
	_ = tw.Flush()
}

func formatDetails(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, " ")
}

// NewExportCommand creates the export subcommand.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		as, out string
		flags   = &eventFilterFlags{}
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the access log as CSV or JSON",
		Example: `  vault export --as csv --out access-log.csv
  vault export --as json --artifact artifact_0123456789abcdef`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := audit.ParseFormat(as)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --as", err)
			}
			filter, err := flags.filter()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid filter", err)
			}

			return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				data, err := a.vault.ExportAccessLog(cmd.Context(), filter, format)
				if err != nil {
					return exitErrorFor("export access log", err)
				}
				if out == "" || out == "-" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(out, data, 0o600); err != nil {
					return WrapExitError(ExitFailure, "write export", err)
				}
				a.logger.Info("access log exported", "path", out, "bytes", len(data))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", string(audit.FormatCSV), "export encoding (csv|json)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (stdout when empty)")
	flags.register(cmd)
	return cmd
}

// NewVerifyCommand creates the verify subcommand.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the access log hash chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(rootOpts, cmd.OutOrStdout())
			return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				events := a.auditLog.Len()
				if err := a.vault.VerifyAccessLog(cmd.Context()); err != nil {
					if p.structured() {
						if perr := p.result("invalid", map[string]any{"events": events, "error": err.Error()}, nil); perr != nil {
							return perr
						}
					}
					return WrapExitError(ExitFailure, "access log verification failed", err)
				}
				return p.ok(map[string]any{"events": events, "valid": true}, func(w io.Writer) {
					p.success("access log intact (%d events)", events)
				})
			})
		},
	}
	return cmd
}

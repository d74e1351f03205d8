package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"receiptvault/internal/vault/models"
)

const maxIngestLine = 4 << 20

// IngestLine reports the outcome of one input line.
type IngestLine struct {
	Line       int    `json:"line"`
	ArtifactID string `json:"artifact_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// IngestReport summarises an ingest run.
type IngestReport struct {
	Stored int          `json:"stored"`
	Failed int          `json:"failed"`
	Lines  []IngestLine `json:"lines"`
}

// NewIngestCommand creates the ingest subcommand.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file|->",
		Short: "Store artifacts from a JSON Lines file",
		Long: `Ingest reads one store request per line, as JSON objects with the fields
artifact_type, content, user_id, timestamp, context, tags, retention_class
and optionally artifact_id. Blank lines are skipped. Every line is attempted;
the command fails if any line fails.`,
		Example: `  vault ingest receipts.jsonl
  cat receipts.jsonl | vault ingest -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runIngest(cmd *cobra.Command, rootOpts *RootOptions, path string) error {
	in, err := openInput(cmd, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "open input", err)
	}
	defer in.Close()

	p := newPrinter(rootOpts, cmd.OutOrStdout())
	return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
		report, err := ingest(cmd, a, in)
		if err != nil {
			return WrapExitError(ExitCommandError, "read input", err)
		}

		if err := p.ok(report, func(w io.Writer) {
			for _, l := range report.Lines {
				if l.Error != "" {
					p.failure("line %d: %s", l.Line, l.Error)
					continue
				}
				p.success("line %d: %s", l.Line, l.ArtifactID)
			}
			fmt.Fprintf(w, "%d stored, %d failed\n", report.Stored, report.Failed)
		}); err != nil {
			return err
		}
		if report.Failed > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d of %d lines failed", report.Failed, report.Stored+report.Failed))
		}
		return nil
	})
}

func ingest(cmd *cobra.Command, a *app, in io.Reader) (*IngestReport, error) {
	report := &IngestReport{Lines: []IngestLine{}}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxIngestLine)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		result := IngestLine{Line: lineNo}
		var req models.StoreRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			result.Error = fmt.Sprintf("decode: %v", err)
		} else if id, err := a.vault.Store(cmd.Context(), &req); err != nil {
			result.Error = err.Error()
		} else {
			result.ArtifactID = id
		}

		if result.Error != "" {
			report.Failed++
			a.logger.Debug("ingest line failed", "line", lineNo, "error", result.Error)
		} else {
			report.Stored++
		}
		report.Lines = append(report.Lines, result)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return report, nil
}

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"receiptvault/internal/vault/models"
)

type storeOptions struct {
	id          string
	artifactTyp string
	content     string
	owner       string
	eventTime   string
	tags        []string
	retention   string
	contextJSON string
}

// NewStoreCommand creates the store subcommand.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &storeOptions{}

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Store an artifact and print its id",
		Long: `Store an artifact. Without --id the id is derived from content, owner
and event time, so storing the same receipt twice yields the same id.

Use --content - to read content from stdin.`,
		Example: `  vault store --type unsent_message --content "I'm sorry" --owner u1 --retention standard
  echo "draft" | vault store --type deleted_draft --content - --retention temporary --tag draft`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "explicit artifact id (derived when empty)")
	cmd.Flags().StringVar(&opts.artifactTyp, "type", "", "artifact type (required)")
	cmd.Flags().StringVar(&opts.content, "content", "", `artifact content, or "-" for stdin (required)`)
	cmd.Flags().StringVar(&opts.owner, "owner", "", "owning user id")
	cmd.Flags().StringVar(&opts.eventTime, "event-time", "", "RFC 3339 event time (defaults to now)")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringVar(&opts.retention, "retention", "", "retention class (required)")
	cmd.Flags().StringVar(&opts.contextJSON, "context-json", "", "context as a JSON object")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("content")
	_ = cmd.MarkFlagRequired("retention")

	return cmd
}

func runStore(cmd *cobra.Command, rootOpts *RootOptions, opts *storeOptions) error {
	req, err := opts.request(cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid store request", err)
	}

	p := newPrinter(rootOpts, cmd.OutOrStdout())
	return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
		id, err := a.vault.Store(cmd.Context(), req)
		if err != nil {
			return exitErrorFor("store artifact", err)
		}
		return p.ok(map[string]string{"artifact_id": id}, func(w io.Writer) {
			fmt.Fprintln(w, id)
		})
	})
}

func (o *storeOptions) request(stdin io.Reader) (*models.StoreRequest, error) {
	content := o.content
	if content == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read content from stdin: %w", err)
		}
		content = strings.TrimSuffix(string(data), "\n")
	}

	req := &models.StoreRequest{
		ID:             o.id,
		Type:           models.ArtifactType(o.artifactTyp),
		Content:        content,
		Owner:          o.owner,
		Tags:           o.tags,
		RetentionClass: models.RetentionClass(o.retention),
	}
	if o.eventTime != "" {
		t, err := time.Parse(time.RFC3339Nano, o.eventTime)
		if err != nil {
			return nil, fmt.Errorf("--event-time: %w", err)
		}
		req.EventTime = t
	}
	if o.contextJSON != "" {
		m, err := models.ParseMap([]byte(o.contextJSON))
		if err != nil {
			return nil, fmt.Errorf("--context-json: %w", err)
		}
		req.Context = m
	}
	return req, nil
}

func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}

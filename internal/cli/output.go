package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation completed with a negative outcome (not found, denied, failed lines)
	ExitCommandError = 2 // Command error (bad flags, configuration, backend unreachable)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope for json and yaml output.
type CLIResponse struct {
	Status string `json:"status" yaml:"status"`
	Data   any    `json:"data,omitempty" yaml:"data,omitempty"`
}

// printer renders command results in the selected format. Text output goes
// through the caller's render func; json and yaml wrap data in CLIResponse.
type printer struct {
	format string
	w      io.Writer
	green  *color.Color
	yellow *color.Color
	red    *color.Color
}

func newPrinter(opts *RootOptions, w io.Writer) *printer {
	p := &printer{
		format: opts.Format,
		w:      w,
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed, color.Bold),
	}
	if opts.NoColor {
		p.green.DisableColor()
		p.yellow.DisableColor()
		p.red.DisableColor()
	}
	return p
}

func (p *printer) structured() bool {
	return p.format == "json" || p.format == "yaml"
}

// result writes data, calling text for the text format.
func (p *printer) result(status string, data any, text func(w io.Writer)) error {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: status, Data: data})
	case "yaml":
		generic, err := toGeneric(data)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(CLIResponse{Status: status, Data: generic}); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(p.w)
		return nil
	}
}

func (p *printer) ok(data any, text func(w io.Writer)) error {
	return p.result("ok", data, text)
}

func (p *printer) success(format string, a ...any) {
	p.green.Fprintf(p.w, "✓ "+format+"\n", a...)
}

func (p *printer) warning(format string, a ...any) {
	p.yellow.Fprintf(p.w, "! "+format+"\n", a...)
}

func (p *printer) failure(format string, a ...any) {
	p.red.Fprintf(p.w, "✗ "+format+"\n", a...)
}

// toGeneric routes data through its JSON form so yaml output uses the same
// field names and timestamp format as json output.
func toGeneric(data any) (any, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	return out, nil
}

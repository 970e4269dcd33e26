package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/dshills/ruleminer/internal/storage"
	"github.com/dshills/ruleminer/pkg/types"
)

// Exit codes
const (
	ExitSuccess  = 0
	ExitConfig   = 1
	ExitDatabase = 2
	ExitNetwork  = 3
	ExitInternal = 10
)

// UserError is a fatal error with a cause and a suggested fix
type UserError struct {
	Message  string
	Cause    string
	Fix      string
	ExitCode int
	Err      error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format renders the error for a terminal; NO_COLOR or noColor disables color
func (e *UserError) Format(noColor bool) string {
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")
	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}
	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}
	return out.String()
}

// classify maps an error chain onto a UserError
func classify(err error) *UserError {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue
	}

	switch {
	case errors.Is(err, types.ErrConfiguration):
		return &UserError{
			Message:  "Invalid configuration",
			Cause:    err.Error(),
			Fix:      "Check ruleminer.yaml, config/codebases.yaml and RE_* environment variables",
			ExitCode: ExitConfig,
			Err:      err,
		}
	case errors.Is(err, types.ErrPersistence), errors.Is(err, storage.ErrNotFound):
		return &UserError{
			Message:  "Database operation failed",
			Cause:    err.Error(),
			Fix:      "Check the database path, or run: ruleminer reset --yes",
			ExitCode: ExitDatabase,
			Err:      err,
		}
	case errors.Is(err, types.ErrCompletion):
		return &UserError{
			Message:  "LLM request failed",
			Cause:    err.Error(),
			Fix:      "Check your API key, quota and network connection",
			ExitCode: ExitNetwork,
			Err:      err,
		}
	case errors.Is(err, context.Canceled):
		return &UserError{
			Message:  "Interrupted",
			Cause:    "received shutdown signal",
			ExitCode: ExitInternal,
			Err:      err,
		}
	}
	return &UserError{
		Message:  "Unexpected error",
		Cause:    err.Error(),
		Fix:      "This is a bug; rerun with --log-level debug and report the log file",
		ExitCode: ExitInternal,
		Err:      err,
	}
}

// reportError prints err and returns its exit code
func reportError(w io.Writer, err error, noColor bool) int {
	if err == nil {
		return ExitSuccess
	}
	ue := classify(err)
	fmt.Fprint(w, ue.Format(noColor))
	return ue.ExitCode
}

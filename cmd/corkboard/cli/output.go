// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// ExitError makes main exit with Code without printing anything; the
// command already wrote its own output. "corkboard online" uses it to
// report offline as exit status 1.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode reports the process exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// JSONOutput adds a --json flag to a command.
type JSONOutput struct {
	Enabled bool
}

// AddFlags registers --json on flagSet.
func (j *JSONOutput) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.BoolVar(&j.Enabled, "json", false, "output as JSON")
}

// Emit writes result as indented JSON to stdout when --json is set. It
// reports whether it handled the output.
func (j *JSONOutput) Emit(result any) (bool, error) {
	if !j.Enabled {
		return false, nil
	}
	return true, WriteJSON(os.Stdout, result)
}

// WriteJSON writes value as indented JSON followed by a newline.
func WriteJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"log/slog"
)

// shutdownStack closes components in the reverse of the order they
// were started. Every step runs even when an earlier one fails.
type shutdownStack struct {
	steps []shutdownStep
}

type shutdownStep struct {
	name  string
	close func() error
}

func (s *shutdownStack) push(name string, close func() error) {
	s.steps = append(s.steps, shutdownStep{name: name, close: close})
}

func (s *shutdownStack) run(logger *slog.Logger) error {
	var errs []error
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", step.name, err))
			continue
		}
		logger.Debug("closed", "component", step.name)
	}
	s.steps = nil
	return errors.Join(errs...)
}

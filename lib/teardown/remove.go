// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package teardown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iptools-project/iptools/lib/clock"
)

// ErrRemoveExhausted is returned when every removal attempt failed.
var ErrRemoveExhausted = errors.New("profile directory removal attempts exhausted")

// Remover deletes profile directories with bounded retries.
type Remover struct {
	Clock    clock.Clock
	Attempts int
	Interval time.Duration
	Logger   *slog.Logger

	// removeAll is os.RemoveAll unless a test replaces it.
	removeAll func(string) error
}

// Remove deletes path and everything below it. path must be an
// absolute profile_<name> directory. A path that does not exist is
// not an error.
func (r *Remover) Remove(ctx context.Context, path string) error {
	if !filepath.IsAbs(path) || !strings.HasPrefix(filepath.Base(path), "profile_") {
		return fmt.Errorf("refusing to remove %q: not an absolute profile directory", path)
	}

	removeAll := r.removeAll
	if removeAll == nil {
		removeAll = os.RemoveAll
	}

	for attempt := 1; ; attempt++ {
		err := removeAll(path)
		if err == nil {
			return nil
		}
		if attempt >= r.Attempts {
			return fmt.Errorf("removing %s after %d attempts: %w: %w", path, attempt, ErrRemoveExhausted, err)
		}
		if r.Logger != nil {
			r.Logger.Debug("profile directory removal failed, retrying",
				"path", path,
				"attempt", attempt,
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.Clock.After(r.Interval):
		}
	}
}

// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError carries a non-zero exit code for an outcome the command
// has already reported, such as a cluster that started but did not
// fully register. main exits with Code without printing the error.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

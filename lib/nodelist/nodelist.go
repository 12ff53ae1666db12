// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package nodelist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Environment variables consulted by FromEnvironment, in priority order.
const (
	PBSNodeFileVariable      = "PBS_NODEFILE"
	SlurmJobNodeListVariable = "SLURM_JOB_NODELIST"
	SlurmNodeListVariable    = "SLURM_NODELIST"
)

// ErrNoNodeList is returned by FromEnvironment when no batch scheduler
// variable is set.
var ErrNoNodeList = errors.New("no node list in environment (set " +
	PBSNodeFileVariable + " or " + SlurmJobNodeListVariable + ")")

// Source names the scheduler a List was read from.
type Source string

const (
	SourcePBS   Source = "pbs"
	SourceSlurm Source = "slurm"
)

// List is an ordered set of host names.
type List struct {
	hosts []string
}

// New builds a List from hosts, dropping empty names and repeats.
func New(hosts []string) List {
	seen := make(map[string]struct{}, len(hosts))
	unique := make([]string, 0, len(hosts))
	for _, host := range hosts {
		if host == "" {
			continue
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		unique = append(unique, host)
	}
	return List{hosts: unique}
}

// Hosts returns a copy of the host names in first-seen order.
func (l List) Hosts() []string {
	return append([]string(nil), l.hosts...)
}

// Len returns the number of distinct hosts.
func (l List) Len() int { return len(l.hosts) }

// SpawnCount returns the number of engines a cluster with perNode
// engines on every host runs.
func (l List) SpawnCount(perNode int) int {
	return len(l.hosts) * perNode
}

// Parse reads a node file. Each non-blank line contributes its first
// whitespace-separated field.
func Parse(r io.Reader) (List, error) {
	var hosts []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		hosts = append(hosts, fields[0])
	}
	if err := scanner.Err(); err != nil {
		return List{}, fmt.Errorf("reading node file: %w", err)
	}
	return New(hosts), nil
}

// ReadFile parses the node file at path.
func ReadFile(path string) (List, error) {
	file, err := os.Open(path)
	if err != nil {
		return List{}, fmt.Errorf("opening node file: %w", err)
	}
	defer file.Close()

	list, err := Parse(file)
	if err != nil {
		return List{}, fmt.Errorf("%s: %w", path, err)
	}
	if list.Len() == 0 {
		return List{}, fmt.Errorf("node file %s lists no hosts", path)
	}
	return list, nil
}

// FromEnvironment locates the job's node list. PBS_NODEFILE takes
// precedence; otherwise the Slurm host-range variables are expanded.
// lookup is normally os.LookupEnv.
func FromEnvironment(lookup func(string) (string, bool)) (List, Source, error) {
	if path, ok := lookup(PBSNodeFileVariable); ok && path != "" {
		list, err := ReadFile(path)
		return list, SourcePBS, err
	}

	for _, variable := range []string{SlurmJobNodeListVariable, SlurmNodeListVariable} {
		expression, ok := lookup(variable)
		if !ok || strings.TrimSpace(expression) == "" {
			continue
		}
		hosts, err := ExpandHostlist(expression)
		if err != nil {
			return List{}, SourceSlurm, fmt.Errorf("%s: %w", variable, err)
		}
		return New(hosts), SourceSlurm, nil
	}

	return List{}, "", ErrNoNodeList
}

// ExpandHostlist expands a Slurm host-range expression such as
// "node[01-03,7],gpu5" into individual host names. Zero padding of the
// range start is kept. Nested brackets are rejected.
func ExpandHostlist(expression string) ([]string, error) {
	parts, err := splitTopLevel(strings.TrimSpace(expression))
	if err != nil {
		return nil, err
	}

	var hosts []string
	for _, part := range parts {
		expanded, err := expandPart(part)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, expanded...)
	}
	return New(hosts).hosts, nil
}

// splitTopLevel splits on commas that are not inside brackets.
func splitTopLevel(expression string) ([]string, error) {
	var parts []string
	depth := 0
	start := 0
	for i, r := range expression {
		switch r {
		case '[':
			depth++
			if depth > 1 {
				return nil, fmt.Errorf("nested '[' at offset %d in %q", i, expression)
			}
		case ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced ']' at offset %d in %q", i, expression)
			}
		case ',':
			if depth == 0 {
				parts = append(parts, expression[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unterminated '[' in %q", expression)
	}
	parts = append(parts, expression[start:])

	nonEmpty := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return nonEmpty, nil
}

// expandPart expands one host pattern, which may hold several bracket
// groups (rack[1-2]n[1-4]).
func expandPart(pattern string) ([]string, error) {
	open := strings.IndexByte(pattern, '[')
	if open < 0 {
		return []string{pattern}, nil
	}
	closing := strings.IndexByte(pattern[open:], ']')
	if closing < 0 {
		return nil, fmt.Errorf("unterminated '[' in %q", pattern)
	}
	closing += open

	prefix := pattern[:open]
	values, err := expandRanges(pattern[open+1 : closing])
	if err != nil {
		return nil, fmt.Errorf("%q: %w", pattern, err)
	}
	suffixes, err := expandPart(pattern[closing+1:])
	if err != nil {
		return nil, err
	}

	hosts := make([]string, 0, len(values)*len(suffixes))
	for _, value := range values {
		for _, suffix := range suffixes {
			hosts = append(hosts, prefix+value+suffix)
		}
	}
	return hosts, nil
}

// expandRanges expands the body of one bracket group: "01-03,7".
func expandRanges(body string) ([]string, error) {
	if body == "" {
		return nil, errors.New("empty range")
	}

	var values []string
	for _, item := range strings.Split(body, ",") {
		low, high, isRange := strings.Cut(item, "-")
		if !isRange {
			if _, err := strconv.Atoi(item); err != nil {
				return nil, fmt.Errorf("invalid index %q", item)
			}
			values = append(values, item)
			continue
		}

		lowValue, err := strconv.Atoi(low)
		if err != nil {
			return nil, fmt.Errorf("invalid range start %q", low)
		}
		highValue, err := strconv.Atoi(high)
		if err != nil {
			return nil, fmt.Errorf("invalid range end %q", high)
		}
		if highValue < lowValue {
			return nil, fmt.Errorf("descending range %q", item)
		}

		width := len(low)
		for value := lowValue; value <= highValue; value++ {
			values = append(values, fmt.Sprintf("%0*d", width, value))
		}
	}
	return values, nil
}

// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "stop", 4},
		{"stop", "", 4},
		{"start", "start", 0},
		{"start", "strat", 2},
		{"stop", "stp", 1},
		{"status", "statuss", 1},
		{"kitten", "sitting", 3},
		{"ppn", "ppm", 1},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
		if got := levenshtein(test.b, test.a); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.b, test.a, got, test.want)
		}
	}
}

func TestSuggestFlag(t *testing.T) {
	flagSet := pflag.NewFlagSet("start", pflag.ContinueOnError)
	flagSet.Int("ppn", 12, "")
	flagSet.String("profile", "", "")
	flagSet.BoolP("debug", "d", false, "")

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--profle", "x"}, "--profile"},
		{[]string{"--ppn=3", "--debgu"}, "--debug"},
		{[]string{"--ppn", "3"}, ""},
		{[]string{"-d", "--nodefile"}, ""},
		{[]string{"--", "--profle"}, ""},
	}
	for _, test := range tests {
		if got := suggestFlag(test.args, flagSet); got != test.want {
			t.Errorf("suggestFlag(%v) = %q, want %q", test.args, got, test.want)
		}
	}
}

// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework of the iptools binary.
//
// A [Command] has a name, a [pflag.FlagSet] factory, optional nested
// subcommands, and a Run function. [Command.Execute] routes arguments
// down the tree, parses flags, and prints structured help. Unknown
// commands and flags are answered with the closest known name by edit
// distance.
package cli

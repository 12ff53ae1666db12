// Copyright 2026 The iptools Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for iptools.
//
// A configuration file is optional: [Default] reproduces the stock
// IPython Parallel behaviour (ipcontroller and ipengine from PATH,
// profiles under ~/.ipython, a 30 second controller ceiling and a 120
// second engine ceiling). When a file is wanted it comes from the
// IPTOOLS_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no discovery beyond those two.
//
// Path fields support ${HOME} and ${VAR:-default} expansion after
// loading. Duration fields are Go duration strings ("2s", "500ms").
//
// Key exports:
//
//   - [Config] -- master struct with Cluster, Binaries, Timing, Probe,
//     Templates
//   - [Default] -- the built-in configuration
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [ExpandVars] -- the ${VAR} expander, shared with the probe
//     command builder
//
// This package depends on no other iptools packages.
package config

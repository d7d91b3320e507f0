// Package config loads problem definitions for coreprobe.
//
// A problem names a universe of elements, a predicate over subsets of it
// and the search settings. Problems are written in YAML, JSON or CUE:
//
//	problems:
//	  - name: flags
//	    universe: [-O2, -g, -flto, -march=native]
//	    strategy: punch
//	    timeout: 10m
//	    predicate:
//	      kind: command
//	      command: [./repro.sh]
//	      timeout: 30s
//
// The same problem in CUE may be keyed by name:
//
//	problems: flags: {
//	    universe: ["-O2", "-g", "-flto", "-march=native"]
//	    predicate: {kind: "command", command: ["./repro.sh"]}
//	}
//
// CUE and JSON documents are unified with the #Problem definition from the
// SchemaRegistry, so unknown fields are rejected. YAML documents are decoded
// with known-field checking. Every problem is then validated with struct
// tags and cross-field rules; errors carry file, line and field path.
//
// Watcher reloads the files, and the predicate files they reference, when
// they change on disk.
package config

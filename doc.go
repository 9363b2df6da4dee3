// Package mathprog provides a solver-agnostic representation of mathematical programs.
//
// A model is a mutable definition of an optimization problem;
//   - Variables with bounds and an integrality flag
//   - A linear or quadratic Objective
//   - Linear constraints (bounds on a sparse row)
//   - Families of atomic constraints (e.g. second-order cone)
//
// The model package tracks every mutation since a checkpoint and can emit a
// minimal ModelUpdate, so a long-lived model can be re-solved after incremental
// edits without re-transmitting its entirety. Solver backends are external
// collaborators; they consume validated snapshots and updates only.
package mathprog

import (
	"github.com/blang/semver/v4"
)

var Version = semver.MustParse("0.1.0")

// Package model provides constructs needed to build and incrementally update an
// optimization model.
//
// A model is a list of variables, linear constraints and atomic constraints,
// together with an objective;
//   - Each linear constraint bounds a sparse row of Term
//   - A Term is an association between a coefficient and a Variable
//   - Atomic constraint kinds (e.g. second-order cone) plug in as families
//
// Every mutation is recorded; Checkpoint and Diff produce a ModelUpdate that
// describes exactly what changed, and Apply replays it on a copy taken at the
// checkpoint. Validate walks the structural invariants before a model or an
// update crosses the boundary to a solver backend.
package model

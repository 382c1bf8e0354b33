// Package nn implements the inference-only layers the branch encoders and
// the meta-classifier are built from. Parameters are loaded once and never
// modified; every Forward call allocates its own outputs, so a layer may be
// shared by concurrent callers.
//
// Weight layouts follow the PyTorch modules the artifacts were exported
// from: Linear [out, in], Conv1d [out, in, k], GRU gates ordered r, z, n.
package nn

// Package heatmap holds the per-pixel maps produced by a character/affinity
// text detector and the tensor plumbing needed to get at them.
//
// # Layout
//
// Batched tensors use the NCHW convention:
//   - Images: [N, C, H, W]
//   - Model output: [N, 2, H, W] where channel 0 is the character map and
//     channel 1 the affinity map
//   - Ground-truth heatmaps: [N, H, W]
//
// A Plane is a single row-major 2-D map copied out of such a tensor. Planes
// are always host-side copies, so post-processing never aliases the buffers
// a model or loader may reuse.
//
// # Thresholding
//
// Threshold turns a continuous map into a binary mask: values strictly
// greater than the threshold become 1.0, everything else 0.0. Character and
// affinity maps carry independent thresholds (see Thresholds).
package heatmap

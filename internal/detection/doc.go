// Package detection turns character and affinity heatmaps into word-level
// polygons.
//
// # Algorithm Overview
//
// GenerateWordBoxes follows the usual character-region-awareness pipeline:
//
//  1. Thresholding: the character map and the affinity map are binarized
//     with their own thresholds (strictly greater than).
//  2. Linking: the two masks are OR-ed so affinity activation bridges
//     neighbouring characters into one region.
//  3. Labelling: 4-connected components of the combined mask are found with
//     an iterative flood fill.
//  4. Filtering: components smaller than Options.MinArea pixels, and
//     components that contain no character pixel, are dropped.
//  5. Dilation: the character pixels of each component are grown by a
//     square whose size depends on the component's fill ratio.
//  6. Fitting: the minimum-area enclosing rectangle of the dilated region
//     becomes the word polygon. Near-square rectangles fall back to the
//     axis-aligned box.
//
// # Coordinate System
//
// Polygons live in heatmap pixel space with the origin at the top-left
// corner, X increasing rightward and Y downward. A pixel (x, y) covers the
// unit square [x, x+1) x [y, y+1), so every polygon has positive area.
// Polygons are returned clockwise (as seen on screen) starting from the
// corner closest to the origin.
//
// # Determinism
//
// Components are discovered in row-major scan order and no randomness is
// involved, so identical heatmaps always produce identical polygons in the
// same order.
package detection

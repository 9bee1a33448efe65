// Package imaging moves pixels between files, image.Image values and the
// float32 layouts used by the model and the heatmap code.
//
// # Layouts
//
// Model inputs are channel-first (CHW) float32 slices with values in [0,1].
// Heatmaps are heatmap.Plane values, row-major, one float per pixel. All
// pixel coordinates are 0-based with (0,0) at the top-left corner.
//
// # Grayscale Rendering
//
// PlaneToGray scales a plane linearly from its own minimum to its own
// maximum, so a plane with values in [0, 0.2] renders with full contrast.
// A constant plane renders black. Thresholded planes (0 and 1 only) render
// as pure black and white.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. The conversion and drawing
// functions are stateless; drawing mutates only the destination image passed
// to it.
package imaging

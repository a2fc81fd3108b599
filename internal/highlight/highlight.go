// Package highlight converts chunk bounding polygons from extraction
// coordinates (top-left origin, source units) into rendered-page pixel
// rectangles suitable for drawing overlays in a viewer.
package highlight

import "math"

// Rect is an axis-aligned rectangle in rendered pixel coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Locate maps a polygon of [x1,y1,x2,y2,...] pairs onto the rendered page.
// The polygon uses a top-left origin in source units; the viewer uses a
// bottom-up coordinate system, so each y is flipped against the page height
// in source units before scaling. Polygons with fewer than four points
// produce no highlight.
func Locate(polygon []float64, scale, renderedPageHeight float64) (Rect, bool) {
	if len(polygon) < 8 || scale <= 0 {
		return Rect{}, false
	}

	pageHeight := renderedPageHeight / scale

	minX, minY := math.MaxFloat64, math.MaxFloat64
	maxX, maxY := -math.MaxFloat64, -math.MaxFloat64

	for i := 0; i+1 < len(polygon); i += 2 {
		x := polygon[i] * scale
		y := (pageHeight - polygon[i+1]) * scale

		minX = math.Min(minX, x)
		minY = math.Min(minY, y)
		maxX = math.Max(maxX, x)
		maxY = math.Max(maxY, y)
	}

	return Rect{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX,
		Height: maxY - minY,
	}, true
}

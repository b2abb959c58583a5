// Package preview renders a zone document to a small raster thumbnail.
package preview

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/skyfence/geozone/internal/geo"

	xdraw "golang.org/x/image/draw"
)

// Styling mirrors the editor's shape colors.
var (
	background = color.NRGBA{R: 0x0f, G: 0x17, B: 0x2a, A: 0xff}
	fill       = color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0x40}
	stroke     = color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff}
)

// oversample is the supersampling factor before the final downscale.
const oversample = 4

type point struct {
	x, y float64
}

// shapes is the flattened drawable content of a collection.
type shapes struct {
	points   []point
	lines    [][]point
	polygons [][][]point // polygon -> rings -> vertices
}

// Render rasterizes the collection's geometry into a size x size image.
// Coordinates are fitted to the canvas with uniform scaling; a document
// with no drawable coordinates renders the plain background rather than
// failing.
func Render(c *geo.Collection, size int) (image.Image, error) {
	if size <= 0 {
		return nil, fmt.Errorf("preview size must be positive, got %d", size)
	}

	var sh shapes
	if err := collect(c, &sh); err != nil {
		return nil, err
	}

	big := size * oversample
	canvas := image.NewNRGBA(image.Rect(0, 0, big, big))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	if tr, ok := fit(&sh, big); ok {
		for _, rings := range sh.polygons {
			fillPolygon(canvas, rings, tr)
			for _, ring := range rings {
				drawPath(canvas, ring, tr, true)
			}
		}
		for _, line := range sh.lines {
			drawPath(canvas, line, tr, false)
		}
		for _, p := range sh.points {
			drawDot(canvas, tr.apply(p), oversample*3)
		}
	}

	out := image.NewNRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(out, out.Bounds(), canvas, canvas.Bounds(), xdraw.Src, nil)
	return out, nil
}

// collect walks the document and gathers drawable primitives. Coordinate
// parsing failures surface as format errors: the document already passed
// the shallow check, but coordinates were never validated.
func collect(c *geo.Collection, sh *shapes) error {
	switch {
	case c.Type == geo.TypeFeatureCollection:
		for i := range c.Features {
			if g := c.Features[i].Geometry; g != nil {
				if err := collectGeometry(g, sh); err != nil {
					return err
				}
			}
		}
	case c.Type == geo.TypeFeature:
		if c.Geometry != nil {
			return collectGeometry(c.Geometry, sh)
		}
	default:
		return collectGeometry(&geo.Geometry{
			Type:        c.Type,
			Coordinates: c.Coordinates,
			Geometries:  c.Geometries,
		}, sh)
	}
	return nil
}

func collectGeometry(g *geo.Geometry, sh *shapes) error {
	switch g.Type {
	case geo.TypePoint:
		var p []float64
		if err := json.Unmarshal(g.Coordinates, &p); err != nil {
			return fmt.Errorf("point coordinates: %w", err)
		}
		if len(p) >= 2 {
			sh.points = append(sh.points, point{p[0], p[1]})
		}

	case geo.TypeMultiPoint:
		var ps [][]float64
		if err := json.Unmarshal(g.Coordinates, &ps); err != nil {
			return fmt.Errorf("multipoint coordinates: %w", err)
		}
		for _, p := range ps {
			if len(p) >= 2 {
				sh.points = append(sh.points, point{p[0], p[1]})
			}
		}

	case geo.TypeLineString:
		line, err := parseLine(g.Coordinates)
		if err != nil {
			return err
		}
		sh.lines = append(sh.lines, line)

	case geo.TypeMultiLineString:
		var raw []json.RawMessage
		if err := json.Unmarshal(g.Coordinates, &raw); err != nil {
			return fmt.Errorf("multilinestring coordinates: %w", err)
		}
		for _, r := range raw {
			line, err := parseLine(r)
			if err != nil {
				return err
			}
			sh.lines = append(sh.lines, line)
		}

	case geo.TypePolygon:
		rings, err := parseRings(g.Coordinates)
		if err != nil {
			return err
		}
		sh.polygons = append(sh.polygons, rings)

	case geo.TypeMultiPolygon:
		var raw []json.RawMessage
		if err := json.Unmarshal(g.Coordinates, &raw); err != nil {
			return fmt.Errorf("multipolygon coordinates: %w", err)
		}
		for _, r := range raw {
			rings, err := parseRings(r)
			if err != nil {
				return err
			}
			sh.polygons = append(sh.polygons, rings)
		}

	case geo.TypeGeometryCollection:
		for i := range g.Geometries {
			if err := collectGeometry(&g.Geometries[i], sh); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseLine(raw json.RawMessage) ([]point, error) {
	var coords [][]float64
	if err := json.Unmarshal(raw, &coords); err != nil {
		return nil, fmt.Errorf("line coordinates: %w", err)
	}
	line := make([]point, 0, len(coords))
	for _, c := range coords {
		if len(c) >= 2 {
			line = append(line, point{c[0], c[1]})
		}
	}
	return line, nil
}

func parseRings(raw json.RawMessage) ([][]point, error) {
	var coords [][][]float64
	if err := json.Unmarshal(raw, &coords); err != nil {
		return nil, fmt.Errorf("polygon coordinates: %w", err)
	}
	rings := make([][]point, 0, len(coords))
	for _, ring := range coords {
		pts := make([]point, 0, len(ring))
		for _, c := range ring {
			if len(c) >= 2 {
				pts = append(pts, point{c[0], c[1]})
			}
		}
		rings = append(rings, pts)
	}
	return rings, nil
}

// transform maps document coordinates to pixels: uniform scale, centered,
// with latitude increasing upwards.
type transform struct {
	scale      float64
	minX, minY float64
	offX, offY float64
	height     float64
}

func (t transform) apply(p point) point {
	return point{
		x: t.offX + (p.x-t.minX)*t.scale,
		y: t.height - (t.offY + (p.y-t.minY)*t.scale),
	}
}

// fit computes the transform for all collected coordinates. Returns false
// when there is nothing to draw.
func fit(sh *shapes, canvasSize int) (transform, bool) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)

	visit := func(p point) {
		minX = math.Min(minX, p.x)
		minY = math.Min(minY, p.y)
		maxX = math.Max(maxX, p.x)
		maxY = math.Max(maxY, p.y)
	}
	for _, p := range sh.points {
		visit(p)
	}
	for _, line := range sh.lines {
		for _, p := range line {
			visit(p)
		}
	}
	for _, rings := range sh.polygons {
		for _, ring := range rings {
			for _, p := range ring {
				visit(p)
			}
		}
	}

	if math.IsInf(minX, 1) {
		return transform{}, false
	}

	spanX, spanY := maxX-minX, maxY-minY
	span := math.Max(spanX, spanY)
	if span == 0 {
		// single point or degenerate extent
		span = 1
	}

	margin := float64(canvasSize) * 0.08
	usable := float64(canvasSize) - 2*margin
	scale := usable / span

	return transform{
		scale:  scale,
		minX:   minX,
		minY:   minY,
		offX:   margin + (usable-spanX*scale)/2,
		offY:   margin + (usable-spanY*scale)/2,
		height: float64(canvasSize),
	}, true
}

// fillPolygon paints the interior of a polygon (all rings, even-odd rule,
// so holes stay unfilled) onto img.
func fillPolygon(img *image.NRGBA, rings [][]point, tr transform) {
	type edge struct {
		x1, y1, x2, y2 float64
	}
	var edges []edge
	minY, maxY := math.Inf(1), math.Inf(-1)

	for _, ring := range rings {
		for i := range ring {
			a := tr.apply(ring[i])
			b := tr.apply(ring[(i+1)%len(ring)])
			if a.y == b.y {
				continue
			}
			edges = append(edges, edge{a.x, a.y, b.x, b.y})
			minY = math.Min(minY, math.Min(a.y, b.y))
			maxY = math.Max(maxY, math.Max(a.y, b.y))
		}
	}
	if len(edges) == 0 {
		return
	}

	bounds := img.Bounds()
	yStart := int(math.Max(minY, float64(bounds.Min.Y)))
	yEnd := int(math.Min(maxY, float64(bounds.Max.Y-1)))

	for y := yStart; y <= yEnd; y++ {
		fy := float64(y) + 0.5
		var xs []float64
		for _, e := range edges {
			y1, y2 := e.y1, e.y2
			x1, x2 := e.x1, e.x2
			if y1 > y2 {
				y1, y2 = y2, y1
				x1, x2 = x2, x1
			}
			if fy < y1 || fy >= y2 {
				continue
			}
			t := (fy - y1) / (y2 - y1)
			xs = append(xs, x1+t*(x2-x1))
		}
		if len(xs) < 2 {
			continue
		}
		sortFloats(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			x0 := int(math.Max(xs[i], float64(bounds.Min.X)))
			x1 := int(math.Min(xs[i+1], float64(bounds.Max.X-1)))
			for x := x0; x <= x1; x++ {
				blend(img, x, y, fill)
			}
		}
	}
}

func drawPath(img *image.NRGBA, pts []point, tr transform, closed bool) {
	n := len(pts)
	if n < 2 {
		return
	}
	last := n - 1
	if closed {
		last = n
	}
	for i := 0; i < last; i++ {
		a := tr.apply(pts[i])
		b := tr.apply(pts[(i+1)%n])
		drawSegment(img, a, b)
	}
}

// drawSegment plots a line with a thickness of the oversample factor.
func drawSegment(img *image.NRGBA, a, b point) {
	steps := int(math.Max(math.Abs(b.x-a.x), math.Abs(b.y-a.y)))
	if steps == 0 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		drawDot(img, point{a.x + t*(b.x-a.x), a.y + t*(b.y-a.y)}, oversample/2)
	}
}

func drawDot(img *image.NRGBA, center point, radius int) {
	cx, cy := int(center.x), int(center.y)
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= r2 {
				setPixel(img, cx+dx, cy+dy, stroke)
			}
		}
	}
}

func setPixel(img *image.NRGBA, x, y int, c color.NRGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetNRGBA(x, y, c)
	}
}

// blend applies src over the existing pixel with source alpha.
func blend(img *image.NRGBA, x, y int, src color.NRGBA) {
	if !image.Pt(x, y).In(img.Bounds()) {
		return
	}
	dst := img.NRGBAAt(x, y)
	a := uint32(src.A)
	inv := 255 - a
	img.SetNRGBA(x, y, color.NRGBA{
		R: uint8((uint32(src.R)*a + uint32(dst.R)*inv) / 255),
		G: uint8((uint32(src.G)*a + uint32(dst.G)*inv) / 255),
		B: uint8((uint32(src.B)*a + uint32(dst.B)*inv) / 255),
		A: 0xff,
	})
}

func sortFloats(xs []float64) {
	// insertion sort, crossing counts per scanline are tiny
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j] < xs[j-1]; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}

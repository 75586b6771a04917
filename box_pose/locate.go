package boxpose

import (
	"image"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"go.viam.com/rdk/rimage"
)

// maskForeground is the minimum gray value treated as foreground.
const maskForeground = 128

// LocatePoint samples the depth map at a single pixel of interest.
func (p *Pipeline) LocatePoint(dm *rimage.DepthMap, pt image.Point) (Observation, error) {
	if dm == nil {
		return Observation{}, ErrNilDepthMap
	}
	if pt.X < 0 || pt.Y < 0 || pt.X >= dm.Width() || pt.Y >= dm.Height() {
		return Observation{}, ErrPointOutOfBounds
	}
	d := float64(dm.GetDepth(pt.X, pt.Y))
	if d == 0 {
		return Observation{}, ErrZeroDepth
	}
	return Observation{Pixel: pt, Depth: d}, nil
}

// LocateMask reduces a segmentation mask to a grasp observation: the centroid
// and major-axis angle of the largest foreground component, and the median of
// the non-zero depth samples under the mask. When every masked depth sample
// is zero it falls back to the centroid pixel.
func (p *Pipeline) LocateMask(mask *image.Gray, dm *rimage.DepthMap) (Observation, error) {
	if dm == nil {
		return Observation{}, ErrNilDepthMap
	}
	if mask == nil {
		return Observation{}, ErrEmptyMask
	}
	w, h := dm.Width(), dm.Height()
	if mask.Rect.Dx() != w || mask.Rect.Dy() != h {
		return Observation{}, ErrMaskShapeMismatch
	}

	comp := largestComponent(mask)
	if len(comp) == 0 {
		return Observation{}, ErrEmptyMask
	}
	center, angle := componentShape(comp)

	depths := maskedDepths(mask, dm)
	var d float64
	if len(depths) > 0 {
		sort.Float64s(depths)
		d = stat.Quantile(0.5, stat.Empirical, depths, nil)
	} else {
		d = float64(dm.GetDepth(center.X, center.Y))
	}
	if d == 0 {
		return Observation{}, ErrZeroDepth
	}
	return Observation{Pixel: center, Depth: d, Angle: angle, FromMask: true}, nil
}

// largestComponent returns the pixels of the largest 4-connected foreground
// component, in mask-local coordinates.
func largestComponent(mask *image.Gray) []image.Point {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	visited := make([]bool, w*h)
	at := func(x, y int) bool {
		return mask.GrayAt(mask.Rect.Min.X+x, mask.Rect.Min.Y+y).Y >= maskForeground
	}

	var best []image.Point
	var stack []image.Point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[y*w+x] || !at(x, y) {
				continue
			}
			var comp []image.Point
			stack = append(stack[:0], image.Point{X: x, Y: y})
			visited[y*w+x] = true
			for len(stack) > 0 {
				pt := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				comp = append(comp, pt)
				for _, n := range [4]image.Point{
					{X: pt.X + 1, Y: pt.Y}, {X: pt.X - 1, Y: pt.Y},
					{X: pt.X, Y: pt.Y + 1}, {X: pt.X, Y: pt.Y - 1},
				} {
					if n.X < 0 || n.Y < 0 || n.X >= w || n.Y >= h {
						continue
					}
					if visited[n.Y*w+n.X] || !at(n.X, n.Y) {
						continue
					}
					visited[n.Y*w+n.X] = true
					stack = append(stack, n)
				}
			}
			if len(comp) > len(best) {
				best = comp
			}
		}
	}
	return best
}

// componentShape computes the centroid and the major-axis angle of a pixel
// component from its central moments. The angle is in radians, measured from
// the image x axis with y pointing down.
func componentShape(comp []image.Point) (image.Point, float64) {
	var sx, sy float64
	for _, pt := range comp {
		sx += float64(pt.X)
		sy += float64(pt.Y)
	}
	n := float64(len(comp))
	cx, cy := sx/n, sy/n

	var mu11, mu20, mu02 float64
	for _, pt := range comp {
		dx, dy := float64(pt.X)-cx, float64(pt.Y)-cy
		mu11 += dx * dy
		mu20 += dx * dx
		mu02 += dy * dy
	}
	angle := 0.5 * math.Atan2(2*mu11, mu20-mu02)
	return image.Point{X: int(math.Round(cx)), Y: int(math.Round(cy))}, angle
}

func maskedDepths(mask *image.Gray, dm *rimage.DepthMap) []float64 {
	var depths []float64
	for y := 0; y < dm.Height(); y++ {
		for x := 0; x < dm.Width(); x++ {
			if mask.GrayAt(mask.Rect.Min.X+x, mask.Rect.Min.Y+y).Y < maskForeground {
				continue
			}
			if d := dm.GetDepth(x, y); d > 0 {
				depths = append(depths, float64(d))
			}
		}
	}
	return depths
}

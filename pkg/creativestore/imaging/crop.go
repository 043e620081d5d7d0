package imaging

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/creativestore/creative-store/pkg/creativestore"
)

// Crop tuning defaults. Carried over as measured-good values, not derived
// from a documented rationale, hence configurable.
const (
	DefaultCornerEpsilon     = 0.03
	DefaultEdgeSampleDivisor = 4
)

// CropConfig tunes the background-color inference used when a crop extends
// beyond the source bounds.
type CropConfig struct {
	// CornerEpsilon is the per-channel closeness threshold (fraction of full
	// scale) under which the four corner colors count as one background.
	CornerEpsilon float64
	// EdgeSampleDivisor sets how many points are sampled per edge:
	// dimension divided by this.
	EdgeSampleDivisor int
}

func (c CropConfig) withDefaults() CropConfig {
	if c.CornerEpsilon <= 0 {
		c.CornerEpsilon = DefaultCornerEpsilon
	}
	if c.EdgeSampleDivisor <= 0 {
		c.EdgeSampleDivisor = DefaultEdgeSampleDivisor
	}
	return c
}

// Crop reproduces a composite crop. A rectangle fully inside the source is
// cropped directly. A rectangle partially outside extends the canvas to the
// union of source and crop, filled with an inferred background color. A
// rectangle that misses the source entirely returns the source unmodified
// rather than an all-background image.
func Crop(src image.Image, area creativestore.CropArea, config CropConfig) image.Image {
	config = config.withDefaults()

	bounds := src.Bounds()
	rect := image.Rect(
		bounds.Min.X+area.Left,
		bounds.Min.Y+area.Top,
		bounds.Min.X+area.Left+area.Width,
		bounds.Min.Y+area.Top+area.Height,
	)

	if rect.In(bounds) {
		out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
		draw.Draw(out, out.Bounds(), src, rect.Min, draw.Src)
		return out
	}

	if !rect.Overlaps(bounds) {
		return src
	}

	background := inferBackground(src, config)
	union := bounds.Union(rect)

	canvas := image.NewRGBA(image.Rect(0, 0, union.Dx(), union.Dy()))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	draw.Draw(canvas, bounds.Sub(union.Min), src, bounds.Min, draw.Src)

	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), canvas, rect.Min.Sub(union.Min), draw.Src)
	return out
}

// inferBackground estimates the color surrounding the source content. When
// the four corners agree within the epsilon the corner color wins; otherwise
// each edge contributes a Simpson's-rule mean and the four means are
// averaged.
func inferBackground(src image.Image, config CropConfig) color.Color {
	bounds := src.Bounds()
	corners := []color.Color{
		src.At(bounds.Min.X, bounds.Min.Y),
		src.At(bounds.Max.X-1, bounds.Min.Y),
		src.At(bounds.Min.X, bounds.Max.Y-1),
		src.At(bounds.Max.X-1, bounds.Max.Y-1),
	}
	if cornersClose(corners, config.CornerEpsilon) {
		return corners[0]
	}

	top := edgeMean(src, config, func(t float64) (int, int) {
		return bounds.Min.X + int(t*float64(bounds.Dx()-1)), bounds.Min.Y
	}, bounds.Dx())
	bottom := edgeMean(src, config, func(t float64) (int, int) {
		return bounds.Min.X + int(t*float64(bounds.Dx()-1)), bounds.Max.Y - 1
	}, bounds.Dx())
	left := edgeMean(src, config, func(t float64) (int, int) {
		return bounds.Min.X, bounds.Min.Y + int(t*float64(bounds.Dy()-1))
	}, bounds.Dy())
	right := edgeMean(src, config, func(t float64) (int, int) {
		return bounds.Max.X - 1, bounds.Min.Y + int(t*float64(bounds.Dy()-1))
	}, bounds.Dy())

	return color.RGBA64{
		R: uint16((top[0] + bottom[0] + left[0] + right[0]) / 4),
		G: uint16((top[1] + bottom[1] + left[1] + right[1]) / 4),
		B: uint16((top[2] + bottom[2] + left[2] + right[2]) / 4),
		A: 0xffff,
	}
}

func cornersClose(corners []color.Color, epsilon float64) bool {
	limit := uint32(epsilon * 0xffff)
	for i := 0; i < len(corners); i++ {
		for j := i + 1; j < len(corners); j++ {
			r1, g1, b1, _ := corners[i].RGBA()
			r2, g2, b2, _ := corners[j].RGBA()
			if absDiff(r1, r2) > limit || absDiff(g1, g2) > limit || absDiff(b1, b2) > limit {
				return false
			}
		}
	}
	return true
}

// edgeMean estimates the mean color along one edge with composite Simpson's
// rule over dimension/divisor sample points.
func edgeMean(src image.Image, config CropConfig, at func(t float64) (int, int), dimension int) [3]float64 {
	samples := dimension / config.EdgeSampleDivisor
	if samples < 3 {
		samples = 3
	}
	// Composite Simpson's rule needs an even interval count.
	if samples%2 == 0 {
		samples++
	}

	var sums [3]float64
	var weightTotal float64
	for i := 0; i < samples; i++ {
		weight := 4.0
		switch {
		case i == 0 || i == samples-1:
			weight = 1.0
		case i%2 == 0:
			weight = 2.0
		}
		x, y := at(float64(i) / float64(samples-1))
		r, g, b, _ := src.At(x, y).RGBA()
		sums[0] += weight * float64(r)
		sums[1] += weight * float64(g)
		sums[2] += weight * float64(b)
		weightTotal += weight
	}
	sums[0] /= weightTotal
	sums[1] /= weightTotal
	sums[2] /= weightTotal
	return sums
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// Package golden stores baseline screenshots and compares fresh captures against them.
package golden

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// maxYIQDelta is the largest possible YIQ distance between two colours
const maxYIQDelta = 35215.0

// Options controls how strict a comparison is
type Options struct {
	// Threshold is the per-pixel colour tolerance in [0, 1]. Smaller is stricter.
	Threshold float64
	// MaxDiffPixels is the number of differing pixels tolerated.
	MaxDiffPixels int
	// MaxDiffPixelRatio is the tolerated fraction of differing pixels; 0 disables it.
	MaxDiffPixelRatio float64
	// IncludeAA counts pixels that look like anti-aliased edges as differences.
	IncludeAA bool
}

// DefaultOptions matches the stock toHaveScreenshot tolerances
func DefaultOptions() Options {
	return Options{Threshold: 0.2}
}

// Result describes how a capture differs from its baseline
type Result struct {
	Match        bool
	SizeMismatch bool
	Expected     image.Rectangle
	Actual       image.Rectangle
	DiffPixels   int
	TotalPixels  int
	// Diff is a PNG highlighting differing pixels in red over a faded baseline.
	// Nil when the images match.
	Diff []byte
}

// Ratio is the fraction of differing pixels
func (r *Result) Ratio() float64 {
	if r.TotalPixels == 0 {
		return 0
	}
	return float64(r.DiffPixels) / float64(r.TotalPixels)
}

// String summarises the result for failure messages
func (r *Result) String() string {
	switch {
	case r.Match:
		return "screenshots match"
	case r.SizeMismatch:
		return fmt.Sprintf("expected an image %dpx by %dpx, received %dpx by %dpx",
			r.Expected.Dx(), r.Expected.Dy(), r.Actual.Dx(), r.Actual.Dy())
	default:
		return fmt.Sprintf("%d pixels (ratio %.4f of all image pixels) are different", r.DiffPixels, r.Ratio())
	}
}

// Compare decodes two PNGs and compares them pixel by pixel
func Compare(expected, actual []byte, opts Options) (*Result, error) {
	exp, err := png.Decode(bytes.NewReader(expected))
	if err != nil {
		return nil, fmt.Errorf("decoding expected image: %w", err)
	}
	act, err := png.Decode(bytes.NewReader(actual))
	if err != nil {
		return nil, fmt.Errorf("decoding actual image: %w", err)
	}
	return CompareImages(exp, act, opts)
}

// CompareImages compares two decoded images
func CompareImages(expected, actual image.Image, opts Options) (*Result, error) {
	eb, ab := expected.Bounds(), actual.Bounds()
	res := &Result{Expected: eb, Actual: ab}

	if eb.Dx() != ab.Dx() || eb.Dy() != ab.Dy() {
		res.SizeMismatch = true
		diff, err := encodeSizeMismatch(expected, actual)
		if err != nil {
			return nil, err
		}
		res.Diff = diff
		return res, nil
	}

	res.TotalPixels = eb.Dx() * eb.Dy()
	maxDelta := maxYIQDelta * opts.Threshold * opts.Threshold
	diffImg := image.NewRGBA(image.Rect(0, 0, eb.Dx(), eb.Dy()))

	for y := 0; y < eb.Dy(); y++ {
		for x := 0; x < eb.Dx(); x++ {
			ec := expected.At(eb.Min.X+x, eb.Min.Y+y)
			ac := actual.At(ab.Min.X+x, ab.Min.Y+y)
			delta := colorDelta(ec, ac)
			if delta > maxDelta {
				if !opts.IncludeAA && (antialiased(expected, actual, x, y) || antialiased(actual, expected, x, y)) {
					diffImg.Set(x, y, color.RGBA{R: 255, G: 255, A: 255})
					continue
				}
				res.DiffPixels++
				diffImg.Set(x, y, color.RGBA{R: 255, A: 255})
				continue
			}
			diffImg.Set(x, y, faded(ec))
		}
	}

	res.Match = res.DiffPixels <= opts.MaxDiffPixels
	if opts.MaxDiffPixelRatio > 0 && res.Ratio() > opts.MaxDiffPixelRatio {
		res.Match = false
	}
	if res.Match {
		return res, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, diffImg); err != nil {
		return nil, fmt.Errorf("encoding diff image: %w", err)
	}
	res.Diff = buf.Bytes()
	return res, nil
}

// colorDelta is the squared perceptual distance between two colours in YIQ
// space, after blending both over white.
func colorDelta(a, b color.Color) float64 {
	r1, g1, b1 := blendWhite(a)
	r2, g2, b2 := blendWhite(b)
	if r1 == r2 && g1 == g2 && b1 == b2 {
		return 0
	}
	y := rgb2y(r1, g1, b1) - rgb2y(r2, g2, b2)
	i := rgb2i(r1, g1, b1) - rgb2i(r2, g2, b2)
	q := rgb2q(r1, g1, b1) - rgb2q(r2, g2, b2)
	return 0.5053*y*y + 0.299*i*i + 0.1957*q*q
}

func blendWhite(c color.Color) (float64, float64, float64) {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	alpha := float64(n.A) / 255
	blend := func(v uint8) float64 { return 255 + (float64(v)-255)*alpha }
	return blend(n.R), blend(n.G), blend(n.B)
}

func rgb2y(r, g, b float64) float64 { return r*0.29889531 + g*0.58662247 + b*0.11448223 }
func rgb2i(r, g, b float64) float64 { return r*0.59597799 - g*0.27417610 - b*0.32180189 }
func rgb2q(r, g, b float64) float64 { return r*0.21147017 - g*0.52261711 + b*0.31114694 }

func pixelAt(img image.Image, x, y int) color.Color {
	b := img.Bounds()
	return img.At(b.Min.X+x, b.Min.Y+y)
}

func brightness(img image.Image, x, y int) float64 {
	return rgb2y(blendWhite(pixelAt(img, x, y)))
}

// antialiased reports whether the pixel at (x, y) of img sits on an
// anti-aliased edge: it has both a darker and a brighter neighbour, at most two
// neighbours of equal brightness, and one of the extreme neighbours lies in a
// flat area of both images.
func antialiased(img, other image.Image, x, y int) bool {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	x0, y0 := max(x-1, 0), max(y-1, 0)
	x2, y2 := min(x+1, w-1), min(y+1, h-1)

	zeroes := 0
	if x == x0 || x == x2 || y == y0 || y == y2 {
		zeroes = 1
	}
	center := brightness(img, x, y)
	var lo, hi float64
	var loX, loY, hiX, hiY int
	for nx := x0; nx <= x2; nx++ {
		for ny := y0; ny <= y2; ny++ {
			if nx == x && ny == y {
				continue
			}
			delta := center - brightness(img, nx, ny)
			switch {
			case delta == 0:
				zeroes++
				if zeroes > 2 {
					return false
				}
			case delta < lo:
				lo, loX, loY = delta, nx, ny
			case delta > hi:
				hi, hiX, hiY = delta, nx, ny
			}
		}
	}
	if lo == 0 || hi == 0 {
		return false
	}
	return (hasManySiblings(img, loX, loY) && hasManySiblings(other, loX, loY)) ||
		(hasManySiblings(img, hiX, hiY) && hasManySiblings(other, hiX, hiY))
}

// hasManySiblings reports whether more than two neighbours of (x, y) have
// exactly its colour. Image borders count as one sibling.
func hasManySiblings(img image.Image, x, y int) bool {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	x0, y0 := max(x-1, 0), max(y-1, 0)
	x2, y2 := min(x+1, w-1), min(y+1, h-1)

	zeroes := 0
	if x == x0 || x == x2 || y == y0 || y == y2 {
		zeroes = 1
	}
	c := color.NRGBAModel.Convert(pixelAt(img, x, y))
	for nx := x0; nx <= x2; nx++ {
		for ny := y0; ny <= y2; ny++ {
			if nx == x && ny == y {
				continue
			}
			if color.NRGBAModel.Convert(pixelAt(img, nx, ny)) == c {
				zeroes++
			}
			if zeroes > 2 {
				return true
			}
		}
	}
	return false
}

func faded(c color.Color) color.RGBA {
	r, g, b := blendWhite(c)
	gray := rgb2y(r, g, b)
	v := uint8(255 + (gray-255)*0.1)
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

// encodeSizeMismatch lays both images side by side so the size change is visible
func encodeSizeMismatch(expected, actual image.Image) ([]byte, error) {
	eb, ab := expected.Bounds(), actual.Bounds()
	h := eb.Dy()
	if ab.Dy() > h {
		h = ab.Dy()
	}
	out := image.NewRGBA(image.Rect(0, 0, eb.Dx()+ab.Dx(), h))
	for y := 0; y < eb.Dy(); y++ {
		for x := 0; x < eb.Dx(); x++ {
			out.Set(x, y, expected.At(eb.Min.X+x, eb.Min.Y+y))
		}
	}
	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			out.Set(eb.Dx()+x, y, actual.At(ab.Min.X+x, ab.Min.Y+y))
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encoding diff image: %w", err)
	}
	return buf.Bytes(), nil
}

package imaging

import (
	"fmt"
	"image"
	"math"
	"sort"

	xdraw "golang.org/x/image/draw"
)

// Variant is one preprocessed rendition of the base image, tried in order
// by the decode cascade. Name shows up in logs and test failures.
type Variant struct {
	Name string
	Img  *image.Gray
}

// Variants generates the full preprocessing cascade from a grayscale base,
// cheapest and most likely to succeed first. Badge photos tend to be
// low-contrast, logo-occluded, rotated or undersized; no single transform
// recovers all of them, so the list trades CPU for recall.
func Variants(g *image.Gray) []Variant {
	w, h := g.Rect.Dx(), g.Rect.Dy()

	otsu := threshold(g, otsuLevel(g), false)
	otsuInv := threshold(g, otsuLevel(g), true)

	vs := []Variant{
		{"identity", g},
		{"equalize", Equalize(g)},
		{"sharpen", Sharpen(g)},
		{"gamma-1.4", Gamma(g, 1.4)},
		{"gamma-1.8", Gamma(g, 1.8)},
		{"gamma-2.2", Gamma(g, 2.2)},
		{"adaptive-mean", AdaptiveMeanThreshold(g, 31, 5)},
		{"adaptive-gaussian", AdaptiveGaussianThreshold(g, 31, 3)},
		{"otsu", otsu},
		{"otsu-inv", otsuInv},
		{"close-otsu", Close(otsu)},
		{"open-otsu-inv", Open(otsuInv)},
		{"denoise", Median3(g)},
		{"rotate-90", Rotate90(g)},
		{"rotate-180", Rotate180(g)},
		{"rotate-270", Rotate270(g)},
	}
	for _, s := range []float64{0.75, 1.5, 2.0} {
		vs = append(vs, Variant{fmt.Sprintf("scale-%.2g", s), Scale(g, s)})
	}
	if w >= 8 && h >= 8 {
		vs = append(vs, Variant{"crop-center", CenterCrop(g, 0.7)})
	}
	return vs
}

// Equalize applies contrast-limited histogram equalization. The clip limit
// caps any bin at 3x the mean count and spreads the excess evenly, which
// lifts washed-out prints without blowing up flat regions.
func Equalize(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	total := w * h
	if total == 0 {
		return newGray(w, h)
	}

	var hist [256]int
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		for _, p := range row {
			hist[p]++
		}
	}

	limit := 3 * total / 256
	if limit < 1 {
		limit = 1
	}
	excess := 0
	for i := range hist {
		if hist[i] > limit {
			excess += hist[i] - limit
			hist[i] = limit
		}
	}
	share := excess / 256
	for i := range hist {
		hist[i] += share
	}

	var lut [256]uint8
	cum := 0
	for i := range hist {
		cum += hist[i]
		lut[i] = clampU8(float64(cum) * 255 / float64(total))
	}
	return applyLUT(g, &lut)
}

// Sharpen is an unsharp mask: 1.6*src - 0.6*blur(sigma 3).
func Sharpen(g *image.Gray) *image.Gray {
	blur := gaussianBlur(g, 3)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := newGray(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := float64(g.Pix[y*g.Stride+x])
			b := float64(blur.Pix[y*blur.Stride+x])
			out.Pix[y*out.Stride+x] = clampU8(1.6*s - 0.6*b)
		}
	}
	return out
}

// Gamma applies the inverse-gamma curve used to recover dark captures.
func Gamma(g *image.Gray, gamma float64) *image.Gray {
	inv := 1.0 / math.Max(gamma, 1e-6)
	var lut [256]uint8
	for i := 0; i < 256; i++ {
		lut[i] = clampU8(math.Pow(float64(i)/255, inv) * 255)
	}
	return applyLUT(g, &lut)
}

// AdaptiveMeanThreshold binarizes against the local box mean minus c.
func AdaptiveMeanThreshold(g *image.Gray, block, c int) *image.Gray {
	return thresholdAgainst(g, boxMean(g, block/2), c)
}

// AdaptiveGaussianThreshold binarizes against a gaussian-weighted local
// mean minus c. Sigma follows the usual block-size heuristic.
func AdaptiveGaussianThreshold(g *image.Gray, block, c int) *image.Gray {
	sigma := 0.3*(float64(block-1)*0.5-1) + 0.8
	return thresholdAgainst(g, gaussianBlur(g, sigma), c)
}

// OtsuThreshold binarizes at the global threshold maximizing between-class
// variance; invert flips polarity for white-on-black codes.
func OtsuThreshold(g *image.Gray, invert bool) *image.Gray {
	return threshold(g, otsuLevel(g), invert)
}

// Close fills pinholes in a binarized grid (dilate then erode, 3x3).
func Close(g *image.Gray) *image.Gray { return erode3(dilate3(g)) }

// Open removes speckle from a binarized grid (erode then dilate, 3x3).
func Open(g *image.Gray) *image.Gray { return dilate3(erode3(g)) }

// Median3 is a light 3x3 median denoise.
func Median3(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := newGray(w, h)
	var win [9]int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					yy, xx := clampInt(y+dy, 0, h-1), clampInt(x+dx, 0, w-1)
					win[n] = int(g.Pix[yy*g.Stride+xx])
					n++
				}
			}
			s := win[:]
			sort.Ints(s)
			out.Pix[y*out.Stride+x] = uint8(s[4])
		}
	}
	return out
}

// Rotate90 rotates clockwise.
func Rotate90(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := newGray(h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Pix[x*out.Stride+(h-1-y)] = g.Pix[y*g.Stride+x]
		}
	}
	return out
}

func Rotate180(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := newGray(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Pix[(h-1-y)*out.Stride+(w-1-x)] = g.Pix[y*g.Stride+x]
		}
	}
	return out
}

// Rotate270 rotates counter-clockwise.
func Rotate270(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := newGray(h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Pix[(w-1-x)*out.Stride+y] = g.Pix[y*g.Stride+x]
		}
	}
	return out
}

// Scale resizes by factor with CatmullRom resampling, never below 32px a
// side (modules smaller than that are unreadable anyway).
func Scale(g *image.Gray, factor float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	nw := maxInt(32, int(float64(w)*factor))
	nh := maxInt(32, int(float64(h)*factor))
	out := newGray(nw, nh)
	xdraw.CatmullRom.Scale(out, out.Bounds(), g, g.Bounds(), xdraw.Src, nil)
	return out
}

// CenterCrop keeps the central keep fraction per axis, shedding border
// clutter around a centered code.
func CenterCrop(g *image.Gray, keep float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	cw, ch := int(float64(w)*keep), int(float64(h)*keep)
	if cw < 1 {
		cw = 1
	}
	if ch < 1 {
		ch = 1
	}
	x0, y0 := (w-cw)/2, (h-ch)/2
	out := newGray(cw, ch)
	for y := 0; y < ch; y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+cw], g.Pix[(y0+y)*g.Stride+x0:(y0+y)*g.Stride+x0+cw])
	}
	return out
}

// --- primitives ---

func applyLUT(g *image.Gray, lut *[256]uint8) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := newGray(w, h)
	for y := 0; y < h; y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+w]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x, p := range src {
			dst[x] = lut[p]
		}
	}
	return out
}

func otsuLevel(g *image.Gray) int {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	total := w * h
	if total == 0 {
		return 127
	}
	var hist [256]int
	for y := 0; y < h; y++ {
		for _, p := range g.Pix[y*g.Stride : y*g.Stride+w] {
			hist[p]++
		}
	}
	sum := 0.0
	for i, n := range hist {
		sum += float64(i) * float64(n)
	}
	var sumB, wB float64
	best, bestVar := 127, -1.0
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		v := wB * wF * (mB - mF) * (mB - mF)
		if v > bestVar {
			bestVar = v
			best = t
		}
	}
	return best
}

func threshold(g *image.Gray, level int, invert bool) *image.Gray {
	lo, hi := uint8(0), uint8(255)
	if invert {
		lo, hi = 255, 0
	}
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := newGray(w, h)
	for y := 0; y < h; y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+w]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x, p := range src {
			if int(p) > level {
				dst[x] = hi
			} else {
				dst[x] = lo
			}
		}
	}
	return out
}

// thresholdAgainst binarizes src against a per-pixel reference mean minus c.
func thresholdAgainst(g, mean *image.Gray, c int) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := newGray(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if int(g.Pix[y*g.Stride+x]) > int(mean.Pix[y*mean.Stride+x])-c {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// boxMean computes the windowed mean via an integral image.
func boxMean(g *image.Gray, radius int) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := newGray(w, h)
	if w == 0 || h == 0 {
		return out
	}

	integral := make([]uint64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum uint64
		for x := 0; x < w; x++ {
			rowSum += uint64(g.Pix[y*g.Stride+x])
			integral[(y+1)*(w+1)+(x+1)] = integral[y*(w+1)+(x+1)] + rowSum
		}
	}

	for y := 0; y < h; y++ {
		y0, y1 := maxInt(0, y-radius), minInt(h-1, y+radius)
		for x := 0; x < w; x++ {
			x0, x1 := maxInt(0, x-radius), minInt(w-1, x+radius)
			area := uint64((y1 - y0 + 1) * (x1 - x0 + 1))
			sum := integral[(y1+1)*(w+1)+(x1+1)] -
				integral[y0*(w+1)+(x1+1)] -
				integral[(y1+1)*(w+1)+x0] +
				integral[y0*(w+1)+x0]
			out.Pix[y*out.Stride+x] = uint8(sum / area)
		}
	}
	return out
}

func gaussianBlur(g *image.Gray, sigma float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := newGray(w, h)
	if w == 0 || h == 0 {
		return out
	}

	radius := maxInt(1, int(3*sigma+0.5))
	kernel := make([]float64, 2*radius+1)
	ksum := 0.0
	for i := -radius; i <= radius; i++ {
		kernel[i+radius] = math.Exp(-float64(i*i) / (2 * sigma * sigma))
		ksum += kernel[i+radius]
	}
	for i := range kernel {
		kernel[i] /= ksum
	}

	// horizontal pass into a float buffer, vertical pass out
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for i := -radius; i <= radius; i++ {
				xx := clampInt(x+i, 0, w-1)
				acc += kernel[i+radius] * float64(g.Pix[y*g.Stride+xx])
			}
			tmp[y*w+x] = acc
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for i := -radius; i <= radius; i++ {
				yy := clampInt(y+i, 0, h-1)
				acc += kernel[i+radius] * tmp[yy*w+x]
			}
			out.Pix[y*out.Stride+x] = clampU8(acc)
		}
	}
	return out
}

func erode3(g *image.Gray) *image.Gray  { return morph3(g, true) }
func dilate3(g *image.Gray) *image.Gray { return morph3(g, false) }

func morph3(g *image.Gray, min bool) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := newGray(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var best int
			if min {
				best = 255
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					yy, xx := clampInt(y+dy, 0, h-1), clampInt(x+dx, 0, w-1)
					v := int(g.Pix[yy*g.Stride+xx])
					if min && v < best {
						best = v
					}
					if !min && v > best {
						best = v
					}
				}
			}
			out.Pix[y*out.Stride+x] = uint8(best)
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

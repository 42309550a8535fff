package imaging

import "image"

const (
	// autocontrastCutoff is the histogram fraction clipped from each end of
	// every channel before the levels are stretched.
	autocontrastCutoff = 0.005
	// sharpenAmount is the unsharp-mask weight applied after resizing.
	sharpenAmount = 0.2
)

// autocontrast stretches each channel so that, after discarding the given
// fraction of the darkest and brightest pixels, the remaining range maps to
// the full 0..255 interval. Operates in place.
func autocontrast(img *image.NRGBA, cutoff float64) {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return
	}
	clip := int(float64(total) * cutoff)

	for ch := 0; ch < 3; ch++ {
		var hist [256]int
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			row := img.Pix[(y-bounds.Min.Y)*img.Stride:]
			for x := 0; x < bounds.Dx(); x++ {
				hist[row[x*4+ch]]++
			}
		}

		lo, hi := channelRange(hist, clip)
		if hi <= lo {
			continue
		}

		var lut [256]uint8
		scale := 255.0 / float64(hi-lo)
		for v := 0; v < 256; v++ {
			switch {
			case v <= lo:
				lut[v] = 0
			case v >= hi:
				lut[v] = 255
			default:
				lut[v] = uint8(float64(v-lo)*scale + 0.5)
			}
		}

		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			row := img.Pix[(y-bounds.Min.Y)*img.Stride:]
			for x := 0; x < bounds.Dx(); x++ {
				row[x*4+ch] = lut[row[x*4+ch]]
			}
		}
	}
}

func channelRange(hist [256]int, clip int) (int, int) {
	lo := 0
	for cum := 0; lo < 255; lo++ {
		cum += hist[lo]
		if cum > clip {
			break
		}
	}
	hi := 255
	for cum := 0; hi > 0; hi-- {
		cum += hist[hi]
		if cum > clip {
			break
		}
	}
	return lo, hi
}

// sharpen applies a mild unsharp mask: each channel is pushed away from its
// 3x3 weighted-neighborhood blur by the given amount.
func sharpen(img *image.NRGBA, amount float64) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 || amount == 0 {
		return img
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	copy(out.Pix, img.Pix)

	// 3x3 binomial kernel, weights summing to 16.
	weights := [3][3]int{{1, 2, 1}, {2, 4, 2}, {1, 2, 1}}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			for ch := 0; ch < 3; ch++ {
				sum := 0
				for ky := -1; ky <= 1; ky++ {
					for kx := -1; kx <= 1; kx++ {
						sum += weights[ky+1][kx+1] * int(img.Pix[(y+ky)*img.Stride+(x+kx)*4+ch])
					}
				}
				blurred := float64(sum) / 16.0
				orig := float64(img.Pix[y*img.Stride+x*4+ch])
				v := orig + amount*(orig-blurred)
				if v < 0 {
					v = 0
				} else if v > 255 {
					v = 255
				}
				out.Pix[y*out.Stride+x*4+ch] = uint8(v + 0.5)
			}
		}
	}
	return out
}

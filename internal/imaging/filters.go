package imaging

import (
	"image"
	"image/draw"
	"runtime"
	"sync"

	xdraw "golang.org/x/image/draw"
)

// toRGBA copies img into a fresh RGBA so filters never touch the caller's pixels
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// fitInside returns the largest size with src's aspect ratio that fits in
// maxW x maxH. It never enlarges.
func fitInside(w, h, maxW, maxH int) (int, int, bool) {
	if maxW <= 0 || maxH <= 0 || (w <= maxW && h <= maxH) {
		return w, h, false
	}
	scale := float64(maxW) / float64(w)
	if s := float64(maxH) / float64(h); s < scale {
		scale = s
	}
	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh, true
}

func resize(src *image.RGBA, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// parallelRows splits [0,height) into horizontal strips, one per CPU
func parallelRows(height int, fn func(startY, endY int)) {
	numWorkers := runtime.NumCPU()
	if height < numWorkers {
		numWorkers = height
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		endY := startY + rowsPerWorker
		if endY > height {
			endY = height
		}
		if startY >= endY {
			continue
		}
		wg.Add(1)
		go func(startY, endY int) {
			defer wg.Done()
			fn(startY, endY)
		}(startY, endY)
	}
	wg.Wait()
}

// normalizeContrast stretches each channel linearly so the darkest and
// brightest luminance values map to 0 and 255.
func normalizeContrast(src *image.RGBA) *image.RGBA {
	lo, hi := uint8(255), uint8(0)
	for i := 0; i+3 < len(src.Pix); i += 4 {
		l := luma(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
		if l < lo {
			lo = l
		}
		if l > hi {
			hi = l
		}
	}
	dst := image.NewRGBA(src.Rect)
	if hi <= lo {
		copy(dst.Pix, src.Pix)
		return dst
	}
	scale := 255.0 / float64(hi-lo)
	var lut [256]uint8
	for v := 0; v < 256; v++ {
		lut[v] = clamp8((float64(v) - float64(lo)) * scale)
	}

	height := src.Rect.Dy()
	parallelRows(height, func(startY, endY int) {
		for y := startY; y < endY; y++ {
			row := y * src.Stride
			for x := 0; x < src.Rect.Dx(); x++ {
				i := row + x*4
				dst.Pix[i] = lut[src.Pix[i]]
				dst.Pix[i+1] = lut[src.Pix[i+1]]
				dst.Pix[i+2] = lut[src.Pix[i+2]]
				dst.Pix[i+3] = src.Pix[i+3]
			}
		}
	})
	return dst
}

var (
	sharpenKernel = [3][3]float64{{0, -1, 0}, {-1, 5, -1}, {0, -1, 0}}
	// 3x3 gaussian
	denoiseKernel = [3][3]float64{
		{1.0 / 16, 2.0 / 16, 1.0 / 16},
		{2.0 / 16, 4.0 / 16, 2.0 / 16},
		{1.0 / 16, 2.0 / 16, 1.0 / 16},
	}
)

// convolve applies a 3x3 kernel to the RGB channels, clamping at the borders
func convolve(src *image.RGBA, k [3][3]float64) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewRGBA(src.Rect)

	parallelRows(h, func(startY, endY int) {
		for y := startY; y < endY; y++ {
			for x := 0; x < w; x++ {
				var r, g, b float64
				for ky := -1; ky <= 1; ky++ {
					sy := clampInt(y+ky, 0, h-1)
					for kx := -1; kx <= 1; kx++ {
						sx := clampInt(x+kx, 0, w-1)
						i := sy*src.Stride + sx*4
						weight := k[ky+1][kx+1]
						r += float64(src.Pix[i]) * weight
						g += float64(src.Pix[i+1]) * weight
						b += float64(src.Pix[i+2]) * weight
					}
				}
				o := y*dst.Stride + x*4
				dst.Pix[o] = clamp8(r)
				dst.Pix[o+1] = clamp8(g)
				dst.Pix[o+2] = clamp8(b)
				dst.Pix[o+3] = src.Pix[y*src.Stride+x*4+3]
			}
		}
	})
	return dst
}

func luma(r, g, b uint8) uint8 {
	return uint8((299*int(r) + 587*int(g) + 114*int(b)) / 1000)
}

func clamp8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
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

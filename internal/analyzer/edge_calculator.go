package analyzer

import (
	"image"
	"image/draw"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// edgeCalculator implements EdgeCalculator with Gonum statistics
type edgeCalculator struct {
	slicePool sync.Pool
}

// NewEdgeCalculator creates a new edge calculator using Gonum
func NewEdgeCalculator() EdgeCalculator {
	return &edgeCalculator{
		slicePool: sync.Pool{
			New: func() interface{} {
				return make([]float64, 0, 1024)
			},
		},
	}
}

// SobelMagnitude computes the gradient magnitude in horizontal strips, one per CPU.
// Border pixels are left at zero.
func (ec *edgeCalculator) SobelMagnitude(gray *image.Gray) []float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	out := make([]float64, width*height)
	if width < 3 || height < 3 {
		return out
	}

	numWorkers := runtime.NumCPU()
	if height < numWorkers {
		numWorkers = height
	}
	rowsPerWorker := (height + numWorkers - 1) / numWorkers // ceil division

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		endY := startY + rowsPerWorker
		if startY < 1 {
			startY = 1
		}
		if endY > height-1 {
			endY = height - 1
		}
		if startY >= endY {
			continue
		}
		wg.Add(1)
		go func(startY, endY int) {
			defer wg.Done()
			for y := startY; y < endY; y++ {
				for x := 1; x < width-1; x++ {
					gx := ec.calculateSobelX(gray, bounds.Min.X+x, bounds.Min.Y+y)
					gy := ec.calculateSobelY(gray, bounds.Min.X+x, bounds.Min.Y+y)
					out[y*width+x] = math.Sqrt(float64(gx*gx + gy*gy))
				}
			}
		}(startY, endY)
	}
	wg.Wait()
	return out
}

// CalculateLaplacianVariance computes Laplacian variance using Gonum operations
func (ec *edgeCalculator) CalculateLaplacianVariance(gray *image.Gray) float64 {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < 3 || height < 3 {
		return 0
	}

	// Get reusable slice from pool
	data := ec.slicePool.Get().([]float64)
	defer func() { ec.slicePool.Put(data[:0]) }()

	if cap(data) < (width-2)*(height-2) {
		data = make([]float64, 0, (width-2)*(height-2))
	}

	// Laplacian kernel: [0, 1, 0; 1, -4, 1; 0, 1, 0]
	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			top := float64(gray.GrayAt(x, y-1).Y)
			bottom := float64(gray.GrayAt(x, y+1).Y)
			left := float64(gray.GrayAt(x-1, y).Y)
			right := float64(gray.GrayAt(x+1, y).Y)

			data = append(data, -4*center+top+bottom+left+right)
		}
	}

	return stat.Variance(data, nil)
}

func (ec *edgeCalculator) EdgeDensity(magnitudes []float64, threshold float64) float64 {
	if len(magnitudes) == 0 {
		return 0
	}
	count := 0
	for _, m := range magnitudes {
		if m > threshold {
			count++
		}
	}
	return float64(count) / float64(len(magnitudes))
}

// calculateSobelX calculates Sobel X gradient
func (ec *edgeCalculator) calculateSobelX(gray *image.Gray, x, y int) int {
	return int(gray.GrayAt(x+1, y-1).Y) + 2*int(gray.GrayAt(x+1, y).Y) + int(gray.GrayAt(x+1, y+1).Y) -
		int(gray.GrayAt(x-1, y-1).Y) - 2*int(gray.GrayAt(x-1, y).Y) - int(gray.GrayAt(x-1, y+1).Y)
}

// calculateSobelY calculates Sobel Y gradient
func (ec *edgeCalculator) calculateSobelY(gray *image.Gray, x, y int) int {
	return int(gray.GrayAt(x-1, y+1).Y) + 2*int(gray.GrayAt(x, y+1).Y) + int(gray.GrayAt(x+1, y+1).Y) -
		int(gray.GrayAt(x-1, y-1).Y) - 2*int(gray.GrayAt(x, y-1).Y) - int(gray.GrayAt(x+1, y-1).Y)
}

// toGray converts img into a zero-origin grayscale copy
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// cropGray copies r out of gray into a zero-origin image
func cropGray(gray *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(gray.Bounds())
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		src := (r.Min.Y+y-gray.Rect.Min.Y)*gray.Stride + (r.Min.X - gray.Rect.Min.X)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+r.Dx()], gray.Pix[src:src+r.Dx()])
	}
	return dst
}

// pixelRect maps a fractional region onto a w x h frame
func pixelRect(reg region, w, h int) image.Rectangle {
	return image.Rect(
		int(reg.x0*float64(w)), int(reg.y0*float64(h)),
		int(reg.x1*float64(w)), int(reg.y1*float64(h)),
	)
}

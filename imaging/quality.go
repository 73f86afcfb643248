// Package imaging holds the photo quality gate and the visual similarity
// scorer. Everything here is pure computation over decoded pixels; no
// network calls happen in this package except the remote embedder.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp"

	"github.com/partfinder/identify/models"
)

// Gate rejects unusable photos before any network call is spent on them.
type Gate struct {
	blurThreshold       float64
	minPixels           int
	brightnessThreshold float64
}

// NewGate creates a quality gate with the given thresholds.
func NewGate(blurThreshold float64, minPixels int, brightnessThreshold float64) *Gate {
	return &Gate{
		blurThreshold:       blurThreshold,
		minPixels:           minPixels,
		brightnessThreshold: brightnessThreshold,
	}
}

// Inspect decodes data and produces a QualityReport. It is deterministic and
// performs no I/O. An undecodable payload is an error, not a report.
func (g *Gate) Inspect(data []byte) (models.QualityReport, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return models.QualityReport{}, fmt.Errorf("decode image: %w", err)
	}

	gray, w, h := grayscale(img)

	report := models.QualityReport{
		Width:       w,
		Height:      h,
		Sharpness:   laplacianVariance(gray, w, h),
		Brightness:  meanLuma(gray),
		Orientation: exifOrientation(data),
	}

	if report.Sharpness < g.blurThreshold {
		report.Issues = append(report.Issues, models.IssueBlurry)
	}
	if w*h < g.minPixels {
		report.Issues = append(report.Issues, models.IssueTooSmall)
	}
	if report.Brightness < g.brightnessThreshold {
		report.Issues = append(report.Issues, models.IssueTooDark)
	}
	report.Acceptable = len(report.Issues) == 0

	return report, nil
}

// grayscale converts img to a row-major luma buffer in [0,255].
func grayscale(img image.Image) ([]float64, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	gray := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, gch, bch, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// 16-bit channels scaled back to 8-bit luma.
			gray[y*w+x] = (0.299*float64(r) + 0.587*float64(gch) + 0.114*float64(bch)) / 257.0
		}
	}
	return gray, w, h
}

// laplacianVariance computes the variance of the 4-neighbour Laplacian over
// the image interior. Sharp images have strong second derivatives at edges
// and therefore high variance; defocused images score near zero.
func laplacianVariance(gray []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	n := 0
	sum, sumSq := 0.0, 0.0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			l := 4*gray[y*w+x] - gray[y*w+x-1] - gray[y*w+x+1] - gray[(y-1)*w+x] - gray[(y+1)*w+x]
			sum += l
			sumSq += l * l
			n++
		}
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

func meanLuma(gray []float64) float64 {
	if len(gray) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range gray {
		sum += v
	}
	return sum / float64(len(gray))
}

// exifOrientation returns the EXIF orientation value (1-8), or 0 when the
// payload carries none.
func exifOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return v
}

package imageproc

import (
	"fmt"
	"image"
	"math"

	"github.com/andresmejia3/facemood/internal/types"
	"github.com/disintegration/imaging"
)

// FitDimensions computes the output size for a w×h image and a maxW×maxH box.
//
// The branch is taken on the box's ratio, not the image's: a landscape box always
// fits to height and anything else fits to width. For images whose ratio differs
// sharply from the box this can exceed the other bound; callers rely on that exact
// behaviour so it is kept.
func FitDimensions(w, h, maxW, maxH int) (int, int, error) {
	if maxW <= 0 || maxH <= 0 {
		return 0, 0, types.NewError(types.KindInvalidInput, fmt.Sprintf("bounds must be positive, got %dx%d", maxW, maxH), nil)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, types.NewError(types.KindInvalidInput, fmt.Sprintf("image has no pixels (%dx%d)", w, h), nil)
	}

	ratioBitmap := float64(w) / float64(h)
	ratioMax := float64(maxW) / float64(maxH)

	var finalW, finalH int
	if ratioMax > 1 {
		finalH = maxH
		finalW = int(math.Round(float64(maxH) * ratioBitmap))
	} else {
		finalW = maxW
		finalH = int(math.Round(float64(maxW) / ratioBitmap))
	}

	return max(finalW, 1), max(finalH, 1), nil
}

// Resize scales img into the maxW×maxH box (see FitDimensions) with a Lanczos filter.
func Resize(img image.Image, maxW, maxH int) (*image.NRGBA, error) {
	b := img.Bounds()
	w, h, err := FitDimensions(b.Dx(), b.Dy(), maxW, maxH)
	if err != nil {
		return nil, err
	}
	return imaging.Resize(img, w, h, imaging.Lanczos), nil
}

// Package imageproc normalizes captured photos: EXIF orientation correction and
// bounding-box resizing ahead of recognition.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facemood/internal/types"
	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	// Extra capture formats beyond the jpeg/png/gif that imaging registers.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultJPEGQuality matches the quality the capture cache has always been written with.
const DefaultJPEGQuality = 85

// Orientation is the rotation an image needs to be displayed upright.
type Orientation int

const (
	OrientationNormal Orientation = iota
	OrientationRotate90
	OrientationRotate180
	OrientationRotate270
)

// FromEXIF maps a raw EXIF orientation value onto an Orientation.
// Mirrored and unknown values are treated as normal.
func FromEXIF(tag int) Orientation {
	switch tag {
	case 6:
		return OrientationRotate90
	case 3:
		return OrientationRotate180
	case 8:
		return OrientationRotate270
	default:
		return OrientationNormal
	}
}

// Degrees returns the clockwise rotation applied for o.
func (o Orientation) Degrees() int {
	switch o {
	case OrientationRotate90:
		return 90
	case OrientationRotate180:
		return 180
	case OrientationRotate270:
		return 270
	default:
		return 0
	}
}

// OrientedImage is a decoded capture rotated upright.
type OrientedImage struct {
	Image    image.Image
	Rotation int
}

// ReadOrientation reads the EXIF orientation tag from an encoded image.
// Missing or unreadable metadata is reported as OrientationNormal.
func ReadOrientation(r io.Reader) Orientation {
	x, err := exif.Decode(r)
	if err != nil {
		return OrientationNormal
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return OrientationNormal
	}
	v, err := tag.Int(0)
	if err != nil {
		return OrientationNormal
	}
	return FromEXIF(v)
}

// Apply rotates img clockwise according to o.
// imaging rotates counter-clockwise, hence the swapped 90/270 calls.
func Apply(img image.Image, o Orientation) OrientedImage {
	var out image.Image
	switch o {
	case OrientationRotate90:
		out = imaging.Rotate270(img)
	case OrientationRotate180:
		out = imaging.Rotate180(img)
	case OrientationRotate270:
		out = imaging.Rotate90(img)
	default:
		out = img
	}
	return OrientedImage{Image: out, Rotation: o.Degrees()}
}

// Correct decodes raw image bytes and rotates them upright using the embedded orientation.
func Correct(data []byte) (OrientedImage, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return OrientedImage{}, types.NewError(types.KindDecodeFailure, "decoding capture", err)
	}
	return Apply(img, ReadOrientation(bytes.NewReader(data))), nil
}

// CorrectFile corrects the capture at src and writes the upright JPEG to dst.
func CorrectFile(src, dst string, quality int) (OrientedImage, error) {
	if err := CheckFile(src); err != nil {
		return OrientedImage{}, err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return OrientedImage{}, types.NewError(types.KindMissingFile, fmt.Sprintf("reading %s", src), err)
	}

	oriented, err := Correct(data)
	if err != nil {
		return OrientedImage{}, err
	}

	if err := Save(oriented.Image, dst, quality); err != nil {
		return OrientedImage{}, err
	}
	return oriented, nil
}

// Save encodes img as JPEG at path.
func Save(img image.Image, path string, quality int) error {
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return types.NewError(types.KindMissingFile, fmt.Sprintf("creating directory for %s", path), err)
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(quality)); err != nil {
		return types.NewError(types.KindMissingFile, fmt.Sprintf("writing %s", path), err)
	}
	return nil
}

// CheckFile verifies path is an existing, non-empty regular file.
func CheckFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return types.NewError(types.KindMissingFile, fmt.Sprintf("%s is not accessible", path), err)
	}
	if !info.Mode().IsRegular() {
		return types.NewError(types.KindMissingFile, fmt.Sprintf("%s is not a regular file", path), nil)
	}
	if info.Size() == 0 {
		return types.NewError(types.KindEmptyFile, fmt.Sprintf("%s has zero bytes", path), nil)
	}
	return nil
}

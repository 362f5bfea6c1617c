package raster

import (
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// EXIF orientation values (TIFF tag 0x0112).
const (
	orientNormal     = 1
	orientFlipH      = 2
	orientRotate180  = 3
	orientFlipV      = 4
	orientTranspose  = 5
	orientRotate90   = 6 // displayed after a quarter turn clockwise
	orientTransverse = 7
	orientRotate270  = 8
)

// readOrientation returns the EXIF orientation in r, or orientNormal when r
// carries no usable EXIF data.
func readOrientation(r io.Reader) int {
	x, err := exif.Decode(r)
	if err != nil {
		return orientNormal
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return orientNormal
	}
	o, err := tag.Int(0)
	if err != nil || o < orientNormal || o > orientRotate270 {
		return orientNormal
	}
	return o
}

// swapsAxes reports whether orientation o turns width into height.
func swapsAxes(o int) bool {
	return o >= orientTranspose
}

// orient returns img as it should be displayed under orientation o.
func orient(img image.Image, o int) image.Image {
	switch o {
	case orientFlipH:
		return imaging.FlipH(img)
	case orientRotate180:
		return imaging.Rotate180(img)
	case orientFlipV:
		return imaging.FlipV(img)
	case orientTranspose:
		return imaging.Transpose(img)
	case orientRotate90:
		return imaging.Rotate270(img)
	case orientTransverse:
		return imaging.Transverse(img)
	case orientRotate270:
		return imaging.Rotate90(img)
	}
	return img
}

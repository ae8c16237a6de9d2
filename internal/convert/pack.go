package convert

import (
	"fmt"
	"image"
)

// Kindle plane geometry.
const (
	PlaneWidth  = 600
	PlaneHeight = 800
	PlaneStride = PlaneWidth / 8 // 75 bytes per row
	PlaneSize   = PlaneStride * PlaneHeight
)

// DefaultThreshold splits anti-aliased gray into ink and paper.
const DefaultThreshold = 128

// PackGray converts a 600×800 grayscale raster into a packed 1bpp plane.
//
// Packing rules:
//
//   - y-major, MSB-first:
//     byteIndex = y * 75 + (x >> 3)
//     mask      = 0x80 >> (x & 7)
//   - the plane starts all 1 (white); pixels darker than threshold clear
//     their bit to 0 (black).
//
// A threshold of 0 uses DefaultThreshold.
func PackGray(img *image.Gray, threshold uint8) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() != PlaneWidth || b.Dy() != PlaneHeight {
		return nil, fmt.Errorf("convert: expected %dx%d, got %dx%d", PlaneWidth, PlaneHeight, b.Dx(), b.Dy())
	}
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	plane := make([]byte, PlaneSize)
	for i := range plane {
		plane[i] = 0xFF
	}

	// Walk Pix directly using the stride instead of calling At().
	for py := 0; py < PlaneHeight; py++ {
		rowOff := py * img.Stride
		for px := 0; px < PlaneWidth; px++ {
			if img.Pix[rowOff+px] >= threshold {
				continue
			}
			plane[py*PlaneStride+(px>>3)] &^= byte(0x80 >> (px & 7))
		}
	}
	return plane, nil
}

// UnpackGray expands a packed plane back into a black/white raster. It is
// the inverse of PackGray and is only used by tests to check dumps.
func UnpackGray(plane []byte) (*image.Gray, error) {
	if len(plane) != PlaneSize {
		return nil, fmt.Errorf("convert: expected %d bytes, got %d", PlaneSize, len(plane))
	}
	img := image.NewGray(image.Rect(0, 0, PlaneWidth, PlaneHeight))
	for py := 0; py < PlaneHeight; py++ {
		for px := 0; px < PlaneWidth; px++ {
			if plane[py*PlaneStride+(px>>3)]&byte(0x80>>(px&7)) != 0 {
				img.Pix[py*img.Stride+px] = 0xFF
			}
		}
	}
	return img, nil
}

// Package avatar renders default profile pictures.
package avatar

import (
	"bytes"
	"crypto/sha256"
	"image"
	"image/color"
	"image/png"
)

const (
	grid = 5
	cell = 50
	pad  = 25
	size = grid*cell + 2*pad
)

// Identicon draws a symmetric 5x5 pattern coloured from the seed's hash, so
// the same username always gets the same picture.
type Identicon struct{}

func NewIdenticon() *Identicon { return &Identicon{} }

func (Identicon) Generate(seed string) ([]byte, error) {
	sum := sha256.Sum256([]byte(seed))
	fg := color.RGBA{R: sum[0], G: sum[1], B: sum[2], A: 0xff}
	bg := color.RGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff}

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, bg)
		}
	}

	for row := 0; row < grid; row++ {
		for col := 0; col < (grid+1)/2; col++ {
			if sum[3+row*3+col]%2 == 0 {
				continue
			}
			fill(img, col, row, fg)
			fill(img, grid-1-col, row, fg)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fill(img *image.RGBA, col, row int, c color.Color) {
	x0, y0 := pad+col*cell, pad+row*cell
	for y := y0; y < y0+cell; y++ {
		for x := x0; x < x0+cell; x++ {
			img.Set(x, y, c)
		}
	}
}

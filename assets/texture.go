// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package assets

import (
	"bytes"
	"image"

	// decoders registered with image.Decode
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/pkg/errors"

	"github.com/devblok/korugraph/core"
)

// Pixels is a decoded image as tightly packed 8 bit RGBA.
type Pixels struct {
	Width  uint32
	Height uint32
	Data   []byte
}

// DecodeImage decodes png, jpeg, bmp, tiff or webp data into RGBA pixels.
func DecodeImage(data []byte) (Pixels, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Pixels{}, errors.Wrap(err, "decode image")
	}
	bounds := img.Bounds()
	return Pixels{
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
		Data:   core.GetPixels(img),
	}, nil
}

// LoadImage reads and decodes the image at respath.
func LoadImage(fsys FS, respath string) (Pixels, error) {
	data, err := fsys.ReadFile(respath)
	if err != nil {
		return Pixels{}, err
	}
	px, err := DecodeImage(data)
	return px, errors.Wrap(err, respath)
}

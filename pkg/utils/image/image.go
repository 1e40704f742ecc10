package image

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"

	"github.com/disintegration/imaging"
)

func EncodeJPEG(dst io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(dst, img, &jpeg.Options{Quality: quality})
}

// Thumbnail decodes a JPEG and re-encodes it scaled to width, keeping the
// aspect ratio.
func Thumbnail(data []byte, width int) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	thumb := imaging.Resize(img, width, 0, imaging.Box)

	var buf bytes.Buffer
	if err = EncodeJPEG(&buf, thumb, 80); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

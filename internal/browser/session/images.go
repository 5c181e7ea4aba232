// internal/browser/session/images.go
package session

import (
	"bytes"
	"fmt"
	"image"

	// Decoders registered with image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// decodeImage decodes png, jpeg, gif, webp and bmp bodies.
func decodeImage(body []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if b := img.Bounds(); b.Empty() {
		return nil, fmt.Errorf("decoding %s image: empty bounds", format)
	}
	return img, nil
}

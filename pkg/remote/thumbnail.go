package remote

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	// Registered for image.Decode.
	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// ThumbnailQuality is the JPEG quality of generated thumbnails.
const ThumbnailQuality = 80

// DefaultThumbnailSize is used for unknown size names.
const DefaultThumbnailSize = "l"

// ThumbnailBox is the bounding box of a thumbnail size.
type ThumbnailBox struct {
	Width  int
	Height int
}

// ThumbnailSizes follows the provider vocabulary.
var ThumbnailSizes = map[string]ThumbnailBox{
	"xs": {32, 32},
	"s":  {64, 64},
	"m":  {128, 128},
	"l":  {640, 480},
	"xl": {1024, 768},
}

// ThumbnailSize resolves a size name, falling back to DefaultThumbnailSize.
func ThumbnailSize(name string) (string, ThumbnailBox) {
	if box, ok := ThumbnailSizes[name]; ok {
		return name, box
	}
	return DefaultThumbnailSize, ThumbnailSizes[DefaultThumbnailSize]
}

// MakeThumbnail decodes an image and fits it within the named size,
// preserving aspect ratio. The result is JPEG.
func MakeThumbnail(data []byte, size string) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	_, box := ThumbnailSize(size)
	thumb := imaging.Fit(img, box.Width, box.Height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: ThumbnailQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

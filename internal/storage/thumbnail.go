package storage

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/disintegration/imaging"
)

// Thumbnail bounds for image attachments.
const (
	ThumbnailMaxWidth  = 320
	ThumbnailMaxHeight = 320

	thumbnailJPEGQuality = 85
)

// thumbnailable lists the formats the decoder understands.
var thumbnailable = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// CanThumbnail reports whether a thumbnail can be generated for contentType.
func CanThumbnail(contentType string) bool {
	return thumbnailable[contentType]
}

// ThumbnailKey returns the key the thumbnail of key is stored under.
func ThumbnailKey(key string) string {
	return strings.TrimSuffix(key, path.Ext(key)) + "_thumb.jpg"
}

// Thumbnail decodes an image and returns a JPEG that fits within
// maxWidth x maxHeight, keeping the aspect ratio. EXIF orientation is applied
// first so phone photos come out upright.
func Thumbnail(r io.Reader, maxWidth, maxHeight int) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	thumb := imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailJPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

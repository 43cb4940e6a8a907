package storage

import (
	"bytes"
	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// AvatarSize bounds both sides of a stored avatar.
const AvatarSize = 512

// PrepareAvatar decodes an uploaded picture, fixes its EXIF orientation,
// fits it inside AvatarSize and re-encodes it as JPEG.
func PrepareAvatar(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "decoding image")
	}
	b := img.Bounds()
	if b.Dx() > AvatarSize || b.Dy() > AvatarSize {
		img = imaging.Fit(img, AvatarSize, AvatarSize, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, errors.Wrap(err, "encoding avatar")
	}
	return buf.Bytes(), nil
}

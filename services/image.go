package services

import (
	"bytes"
	"encoding/base64"
	"image/jpeg"
	"log"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ErrInvalidImage is returned when the submitted payload is not valid base64.
var ErrInvalidImage = errors.New("invalid image payload")

const (
	maxImageDimension = 1600
	jpegQuality       = 85
)

// DecodeImagePayload decodes a base64 image, with or without a data URL prefix.
func DecodeImagePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		if i := strings.Index(payload, ","); i >= 0 {
			payload = payload[i+1:]
		}
	}
	if payload == "" {
		return nil, ErrInvalidImage
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidImage, err.Error())
	}
	if len(raw) == 0 {
		return nil, ErrInvalidImage
	}
	return raw, nil
}

// NormalizeImage shrinks oversized photos before they are sent for perception.
// Bytes that do not decode as an image are returned unchanged.
func NormalizeImage(raw []byte) []byte {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return raw
	}
	b := img.Bounds()
	if b.Dx() <= maxImageDimension && b.Dy() <= maxImageDimension {
		return raw
	}
	resized := imaging.Fit(img, maxImageDimension, maxImageDimension, imaging.Lanczos)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		log.Printf("error re-encoding image: %v", err)
		return raw
	}
	return buf.Bytes()
}

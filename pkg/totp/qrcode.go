package totp

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/pquerna/otp"
)

// DefaultQRSize is the edge length in pixels of rendered QR codes.
const DefaultQRSize = 256

// QRCodePNG renders a provisioning URI as a PNG QR code.
func QRCodePNG(uri string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}

	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse provisioning uri: %w", err)
	}

	img, err := key.Image(size, size)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return buf.Bytes(), nil
}

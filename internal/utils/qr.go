package utils

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// QRImageSize is the edge length in pixels of rendered pairing codes
const QRImageSize = 256

// RenderPairingCode renders a pairing code as a PNG data URL that a browser can
// show directly in an <img> tag.
func RenderPairingCode(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("empty pairing code")
	}
	png, err := qrcode.Encode(code, qrcode.Medium, QRImageSize)
	if err != nil {
		return "", fmt.Errorf("failed to render pairing code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

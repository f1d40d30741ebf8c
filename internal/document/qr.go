package document

import (
	"errors"

	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// ShareQR encodes the share link as a PNG QR code.
func ShareQR(link string, size int) ([]byte, error) {
	if link == "" {
		return nil, errors.New("share link is empty")
	}
	if size <= 0 {
		size = qrSize
	}
	return qrcode.Encode(link, qrcode.Medium, size)
}

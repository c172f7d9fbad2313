package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

const DefaultBadgeSize = 200

var ErrEmptyBadgeValue = errors.New("badge value is empty")

// EncodeBadgePNG renders value as a square QR code PNG for attendee badges.
func EncodeBadgePNG(value string, size int) ([]byte, error) {
	if strings.TrimSpace(value) == "" {
		return nil, ErrEmptyBadgeValue
	}
	if size <= 0 {
		size = DefaultBadgeSize
	}

	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_ERROR_CORRECTION: "M",
		gozxing.EncodeHintType_MARGIN:           2,
	}
	matrix, err := qrcode.NewQRCodeWriter().Encode(value, gozxing.BarcodeFormat_QR_CODE, size, size, hints)
	if err != nil {
		return nil, fmt.Errorf("failed to encode badge: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, matrix); err != nil {
		return nil, fmt.Errorf("failed to write badge png: %w", err)
	}
	return buf.Bytes(), nil
}

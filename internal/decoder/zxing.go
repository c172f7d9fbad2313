package decoder

import (
	"image"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"qrcheckin/internal/ports"
)

// ZXingDecoder finds QR codes in RGBA frames with gozxing.
type ZXingDecoder struct {
	mu       sync.Mutex
	reader   gozxing.Reader
	hints    map[gozxing.DecodeHintType]interface{}
	inverted []byte
}

func NewZXingDecoder(tryHarder bool) *ZXingDecoder {
	hints := map[gozxing.DecodeHintType]interface{}{}
	if tryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	return &ZXingDecoder{
		reader: qrcode.NewQRCodeReader(),
		hints:  hints,
	}
}

// Decode returns the payload of the first QR code found. A frame whose
// buffer does not match width and height decodes to nothing.
func (d *ZXingDecoder) Decode(pix []byte, width int, height int, opts ports.DecodeOptions) (string, bool) {
	if width <= 0 || height <= 0 || len(pix) < width*height*4 {
		return "", false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if text, ok := d.decode(rgbaImage(pix, width, height)); ok {
		return text, true
	}
	if opts.Inversion != ports.InversionAttemptBoth {
		return "", false
	}

	d.inverted = invertInto(d.inverted, pix[:width*height*4])
	return d.decode(rgbaImage(d.inverted, width, height))
}

func (d *ZXingDecoder) decode(img image.Image) (string, bool) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", false
	}
	result, err := d.reader.Decode(bmp, d.hints)
	d.reader.Reset()
	if err != nil || result == nil {
		return "", false
	}
	return result.GetText(), true
}

func rgbaImage(pix []byte, width int, height int) *image.RGBA {
	return &image.RGBA{
		Pix:    pix[:width*height*4],
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}
}

// invertInto writes the colour-inverted frame into dst, keeping alpha.
func invertInto(dst []byte, pix []byte) []byte {
	if cap(dst) < len(pix) {
		dst = make([]byte, len(pix))
	}
	dst = dst[:len(pix)]
	for i := 0; i+3 < len(pix); i += 4 {
		dst[i] = 255 - pix[i]
		dst[i+1] = 255 - pix[i+1]
		dst[i+2] = 255 - pix[i+2]
		dst[i+3] = pix[i+3]
	}
	return dst
}

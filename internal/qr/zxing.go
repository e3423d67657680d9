package qr

import (
	"context"
	"image"
	"strings"

	"github.com/makiuchi-d/gozxing"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// zxingEngine is the primary engine: pure-Go zxing port, always available.
// Multi-code detection runs first (costs little and covers the rare frame
// with several codes), the single-code reader second.
// Readers are built per attempt: the zxing port keeps decode state inside
// the reader, so sharing one across goroutines is not safe.
type zxingEngine struct {
	hints map[gozxing.DecodeHintType]interface{}
}

func newZXingEngine() *zxingEngine {
	return &zxingEngine{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

func (e *zxingEngine) Name() string    { return "zxing" }
func (e *zxingEngine) Available() bool { return true }

func (e *zxingEngine) Decode(_ context.Context, img *image.Gray) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", err
	}

	if results, err := multiqr.NewQRCodeMultiReader().DecodeMultiple(bmp, e.hints); err == nil {
		for _, r := range results {
			if text := strings.TrimSpace(r.GetText()); text != "" {
				return text, nil
			}
		}
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, e.hints)
	if err != nil {
		return "", err
	}
	return result.GetText(), nil
}

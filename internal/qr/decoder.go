// Package qr runs the decode cascade: an ordered list of preprocessing
// variants tried against an ordered list of decoding engines, stopping at
// the first non-empty payload. "Nothing decoded" is an expected outcome,
// not an error.
package qr

import (
	"context"
	"image"
	"strings"

	"github.com/EcosIA33/revisia-tap-contact/internal/imaging"
)

// Engine is one decoding backend. Engines report their own availability so
// optional ones (external binaries) degrade to a silent skip. Decode errors
// mean "this attempt failed", never abort the cascade.
type Engine interface {
	Name() string
	Available() bool
	Decode(ctx context.Context, img *image.Gray) (string, error)
}

// Options tune the cascade. The zero value is a sensible default.
type Options struct {
	// SecondaryVariantCap bounds how many variants secondary engines see
	// (they are slower per attempt). Zero means the default of 8.
	SecondaryVariantCap int
	// DisableSecondary skips every engine after the primary.
	DisableSecondary bool
}

// Result describes a successful decode: the trimmed payload plus which
// engine and variant produced it (for logs only, never persisted).
type Result struct {
	Payload string
	Engine  string
	Variant string
}

// Decoder owns its engines so detector state is allocated once and reused
// across calls. Safe for concurrent use; each decode is independent.
type Decoder struct {
	primary      Engine
	secondary    []Engine
	secondaryCap int
}

// New builds a decoder with the zxing primary engine and the optional zbar
// subprocess as secondary.
func New(opts Options) *Decoder {
	secondaryCap := opts.SecondaryVariantCap
	if secondaryCap <= 0 {
		secondaryCap = 8
	}
	d := &Decoder{
		primary:      newZXingEngine(),
		secondaryCap: secondaryCap,
	}
	if !opts.DisableSecondary {
		d.secondary = []Engine{newZBarEngine()}
	}
	return d
}

// Decode runs the cascade over an encoded PNG/JPEG buffer. The boolean is
// false both for unreadable bytes and for images with no decodable code;
// callers treat either as "ask the visitor to retake the photo".
func (d *Decoder) Decode(ctx context.Context, data []byte) (string, bool) {
	res, ok := d.Scan(ctx, data)
	return res.Payload, ok
}

// DecodeImage runs the cascade over an already-decoded pixel grid.
func (d *Decoder) DecodeImage(ctx context.Context, src image.Image) (string, bool) {
	if src == nil {
		return "", false
	}
	res, ok := d.scan(ctx, imaging.Grayscale(src))
	return res.Payload, ok
}

// Scan is Decode with the engine/variant detail kept for logging.
func (d *Decoder) Scan(ctx context.Context, data []byte) (Result, bool) {
	g, err := imaging.FromBytes(data)
	if err != nil {
		return Result{}, false
	}
	return d.scan(ctx, g)
}

func (d *Decoder) scan(ctx context.Context, g *image.Gray) (Result, bool) {
	variants := imaging.Variants(g)

	if res, ok := tryEngine(ctx, d.primary, variants); ok {
		return res, true
	}

	capped := variants
	if len(capped) > d.secondaryCap {
		capped = capped[:d.secondaryCap]
	}
	for _, eng := range d.secondary {
		if !eng.Available() {
			continue
		}
		if res, ok := tryEngine(ctx, eng, capped); ok {
			return res, true
		}
	}
	return Result{}, false
}

func tryEngine(ctx context.Context, eng Engine, variants []imaging.Variant) (Result, bool) {
	for _, v := range variants {
		if ctx.Err() != nil {
			return Result{}, false
		}
		text, err := eng.Decode(ctx, v.Img)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return Result{Payload: text, Engine: eng.Name(), Variant: v.Name}, true
		}
	}
	return Result{}, false
}

// Package barcode turns camera frames and uploaded images into barcode text.
package barcode

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // camera frames arrive as JPEG data URLs
	_ "image/png"  // register decoder
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// DefaultMaxImageBytes caps decoded image payloads.
const DefaultMaxImageBytes = 5 << 20

// MaxImagePixels caps the decoded frame size. Compressed payloads far below
// DefaultMaxImageBytes can still describe frames of this size.
const MaxImagePixels = 16_000_000

// Failure messages surfaced to scanning clients.
const (
	MsgImageRequired = "Image data is required"
	MsgInvalidImage  = "Invalid image data"
	MsgImageTooLarge = "Image is too large"
	MsgNotDetected   = "No barcode detected in image"
)

// Result is the outcome of a decode attempt. A failed attempt is a normal
// result so a scan loop can simply try the next frame.
type Result struct {
	Success bool   `json:"success"`
	Barcode string `json:"barcode,omitempty"`
	Format  string `json:"format,omitempty"`
	Error   string `json:"error_message,omitempty"`
}

// Observer records decode outcomes.
type Observer interface {
	ObserveDecode(outcome, format string)
}

// Decoder decodes 1D and 2D symbols with gozxing.
type Decoder struct {
	maxBytes int
	observer Observer
}

// NewDecoder constructs a Decoder. maxBytes <= 0 selects DefaultMaxImageBytes.
func NewDecoder(maxBytes int, observer Observer) *Decoder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &Decoder{maxBytes: maxBytes, observer: observer}
}

// MaxBytes reports the configured payload cap.
func (d *Decoder) MaxBytes() int {
	return d.maxBytes
}

// DecodeBase64 accepts raw base64 or a data URL such as the ones produced by
// canvas.toDataURL.
func (d *Decoder) DecodeBase64(payload string) Result {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return d.fail("empty", MsgImageRequired)
	}
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return d.fail("invalid", MsgInvalidImage)
		}
		payload = payload[comma+1:]
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > d.maxBytes+3 {
		return d.fail("too_large", MsgImageTooLarge)
	}
	raw, err := decodeBase64(payload)
	if err != nil {
		return d.fail("invalid", MsgInvalidImage)
	}
	return d.Decode(raw)
}

// Decode locates one symbol in an encoded PNG, JPEG or GIF image.
func (d *Decoder) Decode(data []byte) Result {
	if len(data) == 0 {
		return d.fail("empty", MsgImageRequired)
	}
	if len(data) > d.maxBytes {
		return d.fail("too_large", MsgImageTooLarge)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return d.fail("invalid", MsgInvalidImage)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return d.fail("invalid", MsgInvalidImage)
	}
	if cfg.Width > MaxImagePixels/cfg.Height {
		return d.fail("too_large", MsgImageTooLarge)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return d.fail("invalid", MsgInvalidImage)
	}
	return d.DecodeImage(img)
}

// DecodeImage runs the readers over an already decoded image.
func (d *Decoder) DecodeImage(img image.Image) Result {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return d.fail("invalid", MsgInvalidImage)
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	for _, reader := range readers(hints) {
		res, err := reader.Decode(bmp, hints)
		if err != nil || res == nil || res.GetText() == "" {
			continue
		}
		format := res.GetBarcodeFormat().String()
		d.observe("decoded", format)
		return Result{Success: true, Barcode: res.GetText(), Format: format}
	}
	return d.fail("not_found", MsgNotDetected)
}

// readers are built per call; gozxing readers keep per-decode state.
func readers(hints map[gozxing.DecodeHintType]interface{}) []gozxing.Reader {
	return []gozxing.Reader{
		qrcode.NewQRCodeReader(),
		datamatrix.NewDataMatrixReader(),
		oned.NewMultiFormatUPCEANReader(hints),
		oned.NewCode128Reader(),
		oned.NewCode39Reader(),
		oned.NewCode93Reader(),
		oned.NewITFReader(),
		oned.NewCodaBarReader(),
	}
}

func (d *Decoder) fail(outcome, message string) Result {
	d.observe(outcome, "")
	return Result{Error: message}
}

func (d *Decoder) observe(outcome, format string) {
	if d.observer != nil {
		d.observer.ObserveDecode(outcome, format)
	}
}

func decodeBase64(payload string) ([]byte, error) {
	payload = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, payload)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if raw, err := enc.DecodeString(payload); err == nil {
			return raw, nil
		}
	}
	return nil, base64.CorruptInputError(0)
}

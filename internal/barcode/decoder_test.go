package barcode_test

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/barcode"
)

type outcomes struct {
	mu   sync.Mutex
	seen []string
}

func (o *outcomes) ObserveDecode(outcome, format string) {
	o.mu.Lock()
	o.seen = append(o.seen, outcome+":"+format)
	o.mu.Unlock()
}

func TestDecodeQRCode(t *testing.T) {
	raw, err := barcode.QRCodePNG("8991234567890", 240)
	require.NoError(t, err)
	obs := &outcomes{}
	dec := barcode.NewDecoder(0, obs)

	res := dec.Decode(raw)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "8991234567890", res.Barcode)
	assert.Equal(t, "QR_CODE", res.Format)
	assert.Equal(t, []string{"decoded:QR_CODE"}, obs.seen)
}

func TestDecodeCode128DataURL(t *testing.T) {
	raw, err := barcode.Code128PNG("MSK-95", 400, 120)
	require.NoError(t, err)
	dec := barcode.NewDecoder(0, nil)

	res := dec.DecodeBase64("data:image/png;base64," + base64.StdEncoding.EncodeToString(raw))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "MSK-95", res.Barcode)
	assert.Equal(t, "CODE_128", res.Format)
}

func blankPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(10, 10, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeFailuresAreResults(t *testing.T) {
	obs := &outcomes{}
	dec := barcode.NewDecoder(0, obs)

	cases := map[string]struct {
		run  func() barcode.Result
		want string
	}{
		"empty":       {func() barcode.Result { return dec.DecodeBase64("   ") }, barcode.MsgImageRequired},
		"bad base64":  {func() barcode.Result { return dec.DecodeBase64("data:image/png;base64,***") }, barcode.MsgInvalidImage},
		"no comma":    {func() barcode.Result { return dec.DecodeBase64("data:image/png;base64") }, barcode.MsgInvalidImage},
		"not image":   {func() barcode.Result { return dec.Decode([]byte("plain text")) }, barcode.MsgInvalidImage},
		"no symbol":   {func() barcode.Result { return dec.Decode(blankPNG(t)) }, barcode.MsgNotDetected},
		"empty bytes": {func() barcode.Result { return dec.Decode(nil) }, barcode.MsgImageRequired},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := tc.run()
			assert.False(t, res.Success)
			assert.Empty(t, res.Barcode)
			assert.Equal(t, tc.want, res.Error)
		})
	}
	assert.Len(t, obs.seen, len(cases))
}

func TestDecodeRejectsOversizePayload(t *testing.T) {
	dec := barcode.NewDecoder(16, nil)
	assert.Equal(t, 16, dec.MaxBytes())

	res := dec.Decode(make([]byte, 17))
	assert.Equal(t, barcode.MsgImageTooLarge, res.Error)

	res = dec.DecodeBase64(base64.StdEncoding.EncodeToString(make([]byte, 64)))
	assert.Equal(t, barcode.MsgImageTooLarge, res.Error)
}

func TestDecodeRejectsOversizeFrameBeforeDecoding(t *testing.T) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	require.NoError(t, enc.Encode(&buf, image.NewGray(image.Rect(0, 0, 6000, 6000))))
	require.Less(t, buf.Len(), barcode.DefaultMaxImageBytes, "a blank frame compresses well under the byte cap")

	obs := &outcomes{}
	res := barcode.NewDecoder(0, obs).Decode(buf.Bytes())
	assert.False(t, res.Success)
	assert.Equal(t, barcode.MsgImageTooLarge, res.Error)
	assert.Equal(t, []string{"too_large:"}, obs.seen)
}

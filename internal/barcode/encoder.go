package barcode

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Code128PNG renders text as a Code 128 symbol.
func Code128PNG(text string, width, height int) ([]byte, error) {
	matrix, err := oned.NewCode128Writer().Encode(text, gozxing.BarcodeFormat_CODE_128, width, height, nil)
	if err != nil {
		return nil, fmt.Errorf("barcode: encode code128: %w", err)
	}
	return encodePNG(matrix)
}

// QRCodePNG renders text as a QR code.
func QRCodePNG(text string, size int) ([]byte, error) {
	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	if err != nil {
		return nil, fmt.Errorf("barcode: encode qr: %w", err)
	}
	return encodePNG(matrix)
}

func encodePNG(matrix *gozxing.BitMatrix) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, matrix); err != nil {
		return nil, fmt.Errorf("barcode: png: %w", err)
	}
	return buf.Bytes(), nil
}

package raster

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"strings"
)

var dataURLPrefixes = []string{
	"data:image/png;base64,",
	"data:image/jpeg;base64,",
	"data:image/jpg;base64,",
}

// StripDataURL 去掉 data URL 前缀
func StripDataURL(s string) string {
	for _, p := range dataURLPrefixes {
		if rest, ok := strings.CutPrefix(s, p); ok {
			return rest
		}
	}
	return s
}

// EncodePNG 编码为 PNG 字节
func EncodePNG(b *Buffer) ([]byte, error) {
	if b.Empty() {
		return nil, fmt.Errorf("encode png: empty raster")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, b.RGBA()); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeBase64PNG 编码为 base64 PNG（不带 data URL 前缀）
func EncodeBase64PNG(b *Buffer) (string, error) {
	data, err := EncodePNG(b)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeImage 解码 PNG/JPEG 字节
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// DecodeBase64Image 解码 base64（可带 data URL 前缀）图像
func DecodeBase64Image(s string) (image.Image, error) {
	data, err := base64.StdEncoding.DecodeString(StripDataURL(strings.TrimSpace(s)))
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return DecodeImage(data)
}

package raster

// AlphaThreshold alpha 大于该值的像素视为"开"
const AlphaThreshold = 127

// Binarize 把每个像素改写为 (255,255,255,255) 或 (0,0,0,0)，
// 消除抗锯齿和混合产生的中间值。单遍读改写。
func Binarize(b *Buffer) {
	if b.Empty() {
		return
	}
	p := b.Pix
	for i := 0; i < len(p); i += 4 {
		if p[i+3] > AlphaThreshold {
			p[i], p[i+1], p[i+2], p[i+3] = 255, 255, 255, 255
		} else {
			p[i], p[i+1], p[i+2], p[i+3] = 0, 0, 0, 0
		}
	}
}

// IsBinary 检查缓冲是否只包含纯开/纯关像素
func IsBinary(b *Buffer) bool {
	if b.Empty() {
		return true
	}
	p := b.Pix
	for i := 0; i < len(p); i += 4 {
		switch {
		case p[i+3] == 255 && p[i] == 255 && p[i+1] == 255 && p[i+2] == 255:
		case p[i+3] == 0 && p[i] == 0 && p[i+1] == 0 && p[i+2] == 0:
		default:
			return false
		}
	}
	return true
}

// CountOn 统计"开"像素
func CountOn(b *Buffer) int {
	if b.Empty() {
		return 0
	}
	n := 0
	for i := 3; i < len(b.Pix); i += 4 {
		if b.Pix[i] > AlphaThreshold {
			n++
		}
	}
	return n
}

// BinarizeLabel 二值化外部载入的标签：alpha 大于阈值且 RGB 平均亮度（去预乘）大于阈值才算"开"。
// 透明底白色标签和不透明黑底白色标签都能正确载入。
func BinarizeLabel(b *Buffer) {
	if b.Empty() {
		return
	}
	p := b.Pix
	for i := 0; i < len(p); i += 4 {
		a := uint32(p[i+3])
		sum := uint32(p[i]) + uint32(p[i+1]) + uint32(p[i+2])
		if a > AlphaThreshold && sum*255 > 3*AlphaThreshold*a {
			p[i], p[i+1], p[i+2], p[i+3] = 255, 255, 255, 255
		} else {
			p[i], p[i+1], p[i+2], p[i+3] = 0, 0, 0, 0
		}
	}
}

package raster

import (
	"image"
	"image/color"
)

// FloodFill 从 seed 开始对四连通且各通道差值都不超过 tolerance 的区域
// 填充 fill 颜色。整缓冲读取一次，在工作副本上遍历，结束后一次性写回。
// 返回被填充的像素数。
func FloodFill(b *Buffer, seed image.Point, tolerance int, fill color.RGBA) int {
	if b.Empty() || !b.In(seed.X, seed.Y) {
		return 0
	}
	tolerance = min(max(tolerance, 0), 255)

	src := b.Pix
	si := b.Offset(seed.X, seed.Y)
	start := [4]uint8{src[si], src[si+1], src[si+2], src[si+3]}
	if start == [4]uint8{fill.R, fill.G, fill.B, fill.A} {
		return 0
	}

	match := func(i int) bool {
		return absDiff(src[i], start[0]) <= tolerance &&
			absDiff(src[i+1], start[1]) <= tolerance &&
			absDiff(src[i+2], start[2]) <= tolerance &&
			absDiff(src[i+3], start[3]) <= tolerance
	}

	work := make([]uint8, len(src))
	copy(work, src)

	w, h := b.Width, b.Height
	visited := make([]bool, w*h)
	queue := []image.Point{seed}
	visited[seed.Y*w+seed.X] = true
	filled := 0

	for head := 0; head < len(queue); head++ {
		p := queue[head]
		i := b.Offset(p.X, p.Y)
		if !match(i) {
			continue
		}
		work[i], work[i+1], work[i+2], work[i+3] = fill.R, fill.G, fill.B, fill.A
		filled++

		for _, n := range [4]image.Point{
			{p.X + 1, p.Y}, {p.X - 1, p.Y}, {p.X, p.Y + 1}, {p.X, p.Y - 1},
		} {
			if n.X < 0 || n.X >= w || n.Y < 0 || n.Y >= h {
				continue
			}
			k := n.Y*w + n.X
			if visited[k] {
				continue
			}
			visited[k] = true
			queue = append(queue, n)
		}
	}

	copy(b.Pix, work)
	return filled
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

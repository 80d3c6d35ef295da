package render

import (
	"fmt"
	"image"
	"strings"
	"sync"
)

// Style is how a blur overlay obscures the pixels beneath it.
type Style int

const (
	// StyleBlur is a separable box blur; strength is the kernel radius.
	StyleBlur Style = iota
	// StylePixel pixelates; strength is the block size.
	StylePixel
	// StyleBlack paints the region opaque black.
	StyleBlack
)

func (s Style) String() string {
	switch s {
	case StyleBlur:
		return "blur"
	case StylePixel:
		return "pixel"
	case StyleBlack:
		return "black"
	}
	return fmt.Sprintf("Style(%d)", int(s))
}

func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blur", "gauss", "":
		return StyleBlur, nil
	case "pixel":
		return StylePixel, nil
	case "black":
		return StyleBlack, nil
	}
	return StyleBlur, fmt.Errorf("invalid style '%s'. Must be one of: blur, pixel, black", s)
}

// blurBufferPool recycles scratch buffers for the horizontal blur pass.
var blurBufferPool = sync.Pool{
	New: func() interface{} { return make([]uint8, 0, 1024*1024) },
}

// colSumsPool recycles column accumulators for the vertical blur pass.
var colSumsPool = sync.Pool{
	New: func() interface{} { return make([]uint32, 0, 1024) },
}

// Redact obscures rect in img in place. rect is clipped to the image.
//
// The compositor calls it with each blur overlay's display-space rect rounded
// outward to whole canvas pixels, after the frame has been scaled into the
// video box, so strength is measured in display pixels rather than frame pixels.
func Redact(img *image.RGBA, rect image.Rectangle, style Style, strength int) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return
	}
	switch style {
	case StyleBlack:
		fillBlack(img, rect)
	case StylePixel:
		pixelate(img, rect, strength)
	default:
		boxBlur(img, rect, strength)
	}
}

func fillBlack(img *image.RGBA, rect image.Rectangle) {
	stride := img.Stride
	pix := img.Pix
	imgMinX, imgMinY := img.Rect.Min.X, img.Rect.Min.Y
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		rowStart := (y-imgMinY)*stride + (rect.Min.X-imgMinX)*4
		for x := 0; x < rect.Dx(); x++ {
			off := rowStart + x*4
			pix[off] = 0
			pix[off+1] = 0
			pix[off+2] = 0
			pix[off+3] = 255
		}
	}
}

// boxBlur runs a horizontal then a vertical sliding-window average over rect.
// The cost per pixel does not depend on the radius.
func boxBlur(img *image.RGBA, rect image.Rectangle, radius int) {
	w, h := rect.Dx(), rect.Dy()
	radius = max(radius, 1)
	// The window must stay inside the region.
	radius = min(radius, w/2, h/2)
	if radius < 1 {
		return
	}

	needed := w * h * 4
	bufPtr := blurBufferPool.Get().([]uint8)
	if cap(bufPtr) < needed {
		bufPtr = make([]uint8, needed)
	}
	buf := bufPtr[:needed]
	defer blurBufferPool.Put(bufPtr)

	stride := img.Stride
	pix := img.Pix
	minX, minY := rect.Min.X, rect.Min.Y
	imgMinX, imgMinY := img.Rect.Min.X, img.Rect.Min.Y
	count := uint32(2*radius + 1)

	// Horizontal pass: image -> buf.
	for y := 0; y < h; y++ {
		rowStart := (minY + y - imgMinY) * stride
		bufRowStart := y * w * 4

		var rSum, gSum, bSum uint32
		for k := -radius; k <= radius; k++ {
			px := min(max(k, 0), w-1)
			off := rowStart + (minX+px-imgMinX)*4
			rSum += uint32(pix[off])
			gSum += uint32(pix[off+1])
			bSum += uint32(pix[off+2])
		}

		for x := 0; x < w; x++ {
			bufOff := bufRowStart + x*4
			buf[bufOff] = uint8(rSum / count)
			buf[bufOff+1] = uint8(gSum / count)
			buf[bufOff+2] = uint8(bSum / count)
			buf[bufOff+3] = 255

			offRemove := rowStart + (minX+max(x-radius, 0)-imgMinX)*4
			offAdd := rowStart + (minX+min(x+radius+1, w-1)-imgMinX)*4
			rSum = rSum - uint32(pix[offRemove]) + uint32(pix[offAdd])
			gSum = gSum - uint32(pix[offRemove+1]) + uint32(pix[offAdd+1])
			bSum = bSum - uint32(pix[offRemove+2]) + uint32(pix[offAdd+2])
		}
	}

	// Vertical pass: buf -> image, row by row with one running sum per column.
	neededCols := w * 3
	csPtr := colSumsPool.Get().([]uint32)
	if cap(csPtr) < neededCols {
		csPtr = make([]uint32, neededCols)
	}
	colSums := csPtr[:neededCols]
	clear(colSums)
	defer colSumsPool.Put(csPtr)

	for k := -radius; k <= radius; k++ {
		rowOffset := min(max(k, 0), h-1) * w * 4
		for x := 0; x < w; x++ {
			off := rowOffset + x*4
			colSums[x*3] += uint32(buf[off])
			colSums[x*3+1] += uint32(buf[off+1])
			colSums[x*3+2] += uint32(buf[off+2])
		}
	}

	for y := 0; y < h; y++ {
		dstRowOff := (minY + y - imgMinY) * stride
		removeRow := max(y-radius, 0) * w * 4
		addRow := min(y+radius+1, h-1) * w * 4

		for x := 0; x < w; x++ {
			dstOff := dstRowOff + (minX+x-imgMinX)*4
			pix[dstOff] = uint8(colSums[x*3] / count)
			pix[dstOff+1] = uint8(colSums[x*3+1] / count)
			pix[dstOff+2] = uint8(colSums[x*3+2] / count)

			offRemove := removeRow + x*4
			offAdd := addRow + x*4
			colSums[x*3] = colSums[x*3] - uint32(buf[offRemove]) + uint32(buf[offAdd])
			colSums[x*3+1] = colSums[x*3+1] - uint32(buf[offRemove+1]) + uint32(buf[offAdd+1])
			colSums[x*3+2] = colSums[x*3+2] - uint32(buf[offRemove+2]) + uint32(buf[offAdd+2])
		}
	}
}

// pixelate fills each blockSize square of rect with its top-left pixel.
// Blocks are aligned to rect's corner, so the grid follows the face as it moves.
func pixelate(img *image.RGBA, rect image.Rectangle, blockSize int) {
	blockSize = max(blockSize, 1)
	stride := img.Stride
	pix := img.Pix
	imgMinX, imgMinY := img.Rect.Min.X, img.Rect.Min.Y

	for y := rect.Min.Y; y < rect.Max.Y; y += blockSize {
		for x := rect.Min.X; x < rect.Max.X; x += blockSize {
			// Each block takes the color of its top-left pixel.
			srcOff := (y-imgMinY)*stride + (x-imgMinX)*4
			r, g, b, a := pix[srcOff], pix[srcOff+1], pix[srcOff+2], pix[srcOff+3]

			x2 := min(x+blockSize, rect.Max.X)
			y2 := min(y+blockSize, rect.Max.Y)
			for by := y; by < y2; by++ {
				rowStart := (by - imgMinY) * stride
				for bx := x; bx < x2; bx++ {
					dstOff := rowStart + (bx-imgMinX)*4
					pix[dstOff] = r
					pix[dstOff+1] = g
					pix[dstOff+2] = b
					pix[dstOff+3] = a
				}
			}
		}
	}
}

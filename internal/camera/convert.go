package camera

import "image"

// rgbToRGBA copies packed 24-bit RGB rows (stride bytes apart) into dst,
// setting alpha to opaque.
func rgbToRGBA(dst *image.RGBA, src []byte, stride int) {
	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		in := src[y*stride : y*stride+w*3]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		for x := 0; x < w; x++ {
			out[x*4+0] = in[x*3+0]
			out[x*4+1] = in[x*3+1]
			out[x*4+2] = in[x*3+2]
			out[x*4+3] = 0xff
		}
	}
}

// rgbStride returns the row stride of a width x height RGB buffer of size
// bytes. GStreamer pads each raw RGB row to a multiple of four bytes, so
// widths whose rows are not already aligned are read with the padded stride
// when the buffer is large enough for it. ok is false when the buffer is too
// short for either layout.
func rgbStride(width, height, size int) (stride int, ok bool) {
	packed := width * 3
	padded := (packed + 3) &^ 3
	need := func(stride int) int { return stride*(height-1) + packed }
	switch {
	case padded != packed && size >= need(padded):
		return padded, true
	case size >= need(packed):
		return packed, true
	default:
		return 0, false
	}
}

package device

import "fmt"

// TexelChannels is the number of elements packed in one image texel (RGBA).
const TexelChannels = 4

// ImageShape holds the 2-D extents of an image in texels.
type ImageShape struct {
	Width  int
	Height int
}

// Fits reports whether s fits inside other along both axes.
func (s ImageShape) Fits(other ImageShape) bool {
	return s.Width <= other.Width && s.Height <= other.Height
}

// Empty reports whether the shape has no texels.
func (s ImageShape) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

func (s ImageShape) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ChannelImageShape maps an NHWC shape to image extents with channels packed
// four per texel: width = ceil(C/4)*W, height = N*H.
// Shapes of rank below 4 are left-padded with ones.
func ChannelImageShape(shape []int) ImageShape {
	dims := [4]int{1, 1, 1, 1}
	off := 4 - len(shape)
	if off < 0 {
		panic(fmt.Sprintf("device: image shape needs rank <= 4, got %d", len(shape)))
	}
	copy(dims[off:], shape)
	n, h, w, c := dims[0], dims[1], dims[2], dims[3]
	return ImageShape{
		Width:  (c + TexelChannels - 1) / TexelChannels * w,
		Height: n * h,
	}
}

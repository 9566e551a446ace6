package dataset

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// FeaturesFromImage rescales a decoded image to rows x cols grayscale and
// flattens it into the same layout training examples use. Intensities are
// scaled into [0,1]; callers feeding photographs of dark digits on light
// paper should invert first, since the training data is light-on-dark.
func FeaturesFromImage(img image.Image, rows, cols int) []float64 {
	dst := image.NewGray(image.Rect(0, 0, cols, rows))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	features := make([]float64, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			features[y*cols+x] = float64(dst.GrayAt(x, y).Y) / 255.0
		}
	}
	return features
}

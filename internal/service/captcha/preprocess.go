package captcha

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// blurSigma approximates a 3x3 Gaussian kernel.
const blurSigma = 1.0

// Decode parses PNG or JPEG challenge bytes.
func Decode(raw []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode challenge image: %w", err)
	}
	return img, nil
}

// Normalize converts the challenge to greyscale, smooths it and binarizes it
// with an Otsu threshold. Glyphs come out black on white.
func Normalize(img image.Image) *image.Gray {
	smoothed := imaging.Blur(imaging.Grayscale(img), blurSigma)

	b := smoothed.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			// After Grayscale the R, G and B channels are equal.
			gray.Pix[y*gray.Stride+x] = smoothed.Pix[y*smoothed.Stride+x*4]
		}
	}

	t := OtsuThreshold(gray)
	for i, v := range gray.Pix {
		if v > t {
			gray.Pix[i] = 255
		} else {
			gray.Pix[i] = 0
		}
	}
	return gray
}

// Preprocess decodes raw bytes and normalizes them.
func Preprocess(raw []byte) (*image.Gray, error) {
	img, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return Normalize(img), nil
}

// OtsuThreshold returns the grey level that maximises the between-class
// variance of the image histogram. Pixels <= threshold are foreground.
func OtsuThreshold(img *image.Gray) uint8 {
	var hist [256]int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride : (y-b.Min.Y)*img.Stride+b.Dx()]
		for _, v := range row {
			hist[v]++
		}
	}

	total := b.Dx() * b.Dy()
	if total == 0 {
		return 127
	}

	var sum float64
	for i, n := range hist {
		sum += float64(i * n)
	}

	var (
		sumB     float64
		weightB  int
		best     float64
		bestT    uint8
		foundAny bool
	)
	for t := 0; t < 256; t++ {
		weightB += hist[t]
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(t * hist[t])

		meanB := sumB / float64(weightB)
		meanF := (sum - sumB) / float64(weightF)
		between := float64(weightB) * float64(weightF) * (meanB - meanF) * (meanB - meanF)
		if !foundAny || between > best {
			best = between
			bestT = uint8(t)
			foundAny = true
		}
	}
	return bestT
}

// EncodePNG serializes an image for the recognizer.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Package captcha recognizes the portal's verification images.
//
// Images are cleaned with imaging (interference lines removed, grayscale,
// median blur, Otsu binarization) and handed to a chain of engines. Manual
// entry through a terminal prompt is the last resort.
package captcha

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"
)

// lineMargin is how far a channel must exceed the other two before the pixel
// is treated as part of a colored interference line.
const lineMargin = 40

// Preprocess turns a raw captcha image into a black-on-white PNG.
func Preprocess(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode captcha: %w", err)
	}
	cleaned := stripLines(imaging.Clone(src))
	gray := toGray(imaging.Grayscale(cleaned))
	blurred := Median3(gray)
	binary := Binarize(blurred, Otsu(blurred))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, binary, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode captcha: %w", err)
	}
	return buf.Bytes(), nil
}

// stripLines paints red- or blue-dominant pixels white.
func stripLines(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			r, g, bl := int(img.Pix[i]), int(img.Pix[i+1]), int(img.Pix[i+2])
			redLine := r > g+lineMargin && r > bl+lineMargin
			blueLine := bl > r+lineMargin && bl > g+lineMargin
			if redLine || blueLine {
				img.Pix[i], img.Pix[i+1], img.Pix[i+2] = 255, 255, 255
			}
		}
	}
	return img
}

func toGray(img *image.NRGBA) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, color.GrayModel.Convert(img.NRGBAAt(x, y)))
		}
	}
	return out
}

// Median3 applies a 3x3 median filter. Edge pixels use the neighbors that
// exist.
func Median3(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	window := make([]uint8, 0, 9)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					p := image.Pt(x+dx, y+dy)
					if !p.In(b) {
						continue
					}
					window = append(window, src.GrayAt(p.X, p.Y).Y)
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			dst.SetGray(x, y, color.Gray{Y: window[len(window)/2]})
		}
	}
	return dst
}

// Otsu returns the threshold that maximizes between-class variance of the
// image histogram.
func Otsu(img *image.Gray) uint8 {
	var hist [256]int
	b := img.Bounds()
	total := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[img.GrayAt(x, y).Y]++
			total++
		}
	}
	if total == 0 {
		return 0
	}

	var sumAll float64
	for i, n := range hist {
		sumAll += float64(i * n)
	}

	var (
		sumBack    float64
		weightBack int
		bestVar    float64
		best       uint8
	)
	for t := 0; t < 256; t++ {
		weightBack += hist[t]
		if weightBack == 0 {
			continue
		}
		weightFore := total - weightBack
		if weightFore == 0 {
			break
		}
		sumBack += float64(t * hist[t])
		meanBack := sumBack / float64(weightBack)
		meanFore := (sumAll - sumBack) / float64(weightFore)
		diff := meanBack - meanFore
		between := float64(weightBack) * float64(weightFore) * diff * diff
		if between > bestVar {
			bestVar = between
			best = uint8(t)
		}
	}
	return best
}

// Binarize maps pixels above threshold to white and the rest to black.
func Binarize(img *image.Gray, threshold uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := uint8(0)
			if img.GrayAt(x, y).Y > threshold {
				v = 255
			}
			out.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return out
}

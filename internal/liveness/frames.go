package liveness

import (
	"errors"
	"image"
)

// ErrNoFrames is returned by SelectBest when the burst produced nothing.
var ErrNoFrames = errors.New("liveness: no frames to select from")

// SelectBest scores each frame by mean luminance and returns the brightest
// one with its index. Only the winner is transmitted; callers discard the
// rest of the burst.
func SelectBest(frames []image.Image) (image.Image, int, error) {
	if len(frames) == 0 {
		return nil, -1, ErrNoFrames
	}

	bestIdx := 0
	bestScore := meanLuminance(frames[0])
	for i := 1; i < len(frames); i++ {
		if score := meanLuminance(frames[i]); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return frames[bestIdx], bestIdx, nil
}

// meanLuminance averages 0.299R + 0.587G + 0.114B over every pixel, on a
// 0..255 scale.
func meanLuminance(img image.Image) float64 {
	bounds := img.Bounds()
	pixels := bounds.Dx() * bounds.Dy()
	if pixels == 0 {
		return 0
	}

	var sum float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// RGBA returns 16-bit channels; scale down to 8-bit.
			sum += 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}
	return sum / float64(pixels)
}

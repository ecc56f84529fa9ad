// Package render turns recorded wavefield snapshots into images: a
// space-by-time waterfall raster with a diverging palette, suitable for PNG
// output, movie frames, or a live viewer texture.
package render

import (
	"image"
	"math"
)

// Waterfall accumulates one field snapshot per time step as rows of an
// amplitude raster. Width is the field length; rows not yet pushed render
// black.
type Waterfall struct {
	width  int
	steps  int
	pushed int
	data   []float64
	max    float64
}

// NewWaterfall allocates a raster for a field of width samples over steps
// snapshots.
func NewWaterfall(width, steps int) *Waterfall {
	return &Waterfall{
		width: width,
		steps: steps,
		data:  make([]float64, width*steps),
	}
}

// Push copies the next snapshot into the raster. Snapshots beyond the
// configured step count are dropped.
func (wf *Waterfall) Push(field []float64) {
	if wf.pushed >= wf.steps {
		return
	}
	row := wf.data[wf.pushed*wf.width : (wf.pushed+1)*wf.width]
	copy(row, field)
	for _, v := range row {
		if a := math.Abs(v); a > wf.max {
			wf.max = a
		}
	}
	wf.pushed++
}

// Rows reports how many snapshots have been pushed.
func (wf *Waterfall) Rows() int { return wf.pushed }

// Size returns the raster dimensions in pixels.
func (wf *Waterfall) Size() (w, h int) { return wf.width, wf.steps }

// Image renders the full raster.
func (wf *Waterfall) Image() *image.RGBA {
	return wf.FrameAt(wf.pushed)
}

// FrameAt renders the raster with only the first rows snapshots visible,
// at the full fixed size so every frame of a movie matches.
func (wf *Waterfall) FrameAt(rows int) *image.RGBA {
	if rows > wf.pushed {
		rows = wf.pushed
	}
	img := image.NewRGBA(image.Rect(0, 0, wf.width, wf.steps))
	norm := wf.max
	if norm == 0 {
		norm = 1
	}
	fillAmplitudeRGBA(img.Pix[:rows*wf.width*4], wf.data[:rows*wf.width], norm)
	blackOut(img.Pix[rows*wf.width*4:])
	return img
}

// fillAmplitudeRGBA converts signed samples into RGBA pixels on a diverging
// palette: negative amplitudes shade blue, positive shade red, zero is
// white.
func fillAmplitudeRGBA(buf []byte, samples []float64, norm float64) {
	for i, v := range samples {
		t := v / norm
		if t > 1 {
			t = 1
		} else if t < -1 {
			t = -1
		}
		fade := uint8(255 - math.Abs(t)*255)
		base := i * 4
		if t >= 0 {
			buf[base+0] = 255
			buf[base+1] = fade
			buf[base+2] = fade
		} else {
			buf[base+0] = fade
			buf[base+1] = fade
			buf[base+2] = 255
		}
		buf[base+3] = 255
	}
}

func blackOut(buf []byte) {
	for i := 0; i < len(buf); i += 4 {
		buf[i+0] = 0
		buf[i+1] = 0
		buf[i+2] = 0
		buf[i+3] = 255
	}
}

package pattern

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
)

// ImageInfo describes an image placed on a device, pixel for pixel.
type ImageInfo struct {
	// Origin is the device position of the image's top-left pixel.
	Origin        image.Point
	Width, Height int
}

// ImageEnum receives image data row by row after BeginImage.
type ImageEnum interface {
	// WriteRows paints h rows starting at image row y. Rows are straight
	// 8-bit RGBA, stride bytes apart.
	WriteRows(data []byte, stride, y, h int) error
	// End finishes the image.
	End() error
}

// BeginImageDefault returns an ImageEnum that encodes rows with dev's
// color encoding and paints them with CopyColor. Pixels less than half
// opaque are left out.
func BeginImageDefault(dev Device, info ImageInfo) (ImageEnum, error) {
	if info.Width < 0 || info.Height < 0 {
		return nil, fmt.Errorf("pattern: image %dx%d: %w", info.Width, info.Height, ErrRangeCheck)
	}
	ci := dev.Info().Color
	return &defaultImageEnum{
		dev:  dev,
		info: info,
		ci:   ci,
		row:  make([]byte, ci.Raster(info.Width)),
	}, nil
}

type defaultImageEnum struct {
	dev  Device
	info ImageInfo
	ci   ColorInfo
	row  []byte
	done bool
}

func (e *defaultImageEnum) WriteRows(data []byte, stride, y, h int) error {
	if e.done {
		return errors.New("pattern: image rows after End")
	}
	for j := range h {
		src := data[j*stride:]
		dy := e.info.Origin.Y + y + j
		start := -1
		for i := 0; i <= e.info.Width; i++ {
			opaque := i < e.info.Width && src[4*i+3] >= coverageThreshold
			if opaque {
				c := RGBA{
					R: float64(src[4*i]) / 255,
					G: float64(src[4*i+1]) / 255,
					B: float64(src[4*i+2]) / 255,
					A: 1,
				}
				writeChunky(e.row, len(e.row), e.ci.Depth, i, 0, e.ci.Encode(c))
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				if err := e.dev.CopyColor(e.row, start, len(e.row), e.info.Origin.X+start, dy, i-start, 1); err != nil {
					return err
				}
				start = -1
			}
		}
	}
	return nil
}

func (e *defaultImageEnum) End() error {
	e.done = true
	return nil
}

// DrawImageRows feeds img to enum and ends it.
func DrawImageRows(enum ImageEnum, img image.Image) error {
	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	if err := enum.WriteRows(nrgba.Pix, nrgba.Stride, 0, b.Dy()); err != nil {
		return errors.Join(err, enum.End())
	}
	return enum.End()
}

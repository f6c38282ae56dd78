package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	// CanonicalContentType is the single output media type of the transcoder.
	CanonicalContentType = "image/jpeg"
	// CanonicalExt is the extension matching CanonicalContentType.
	CanonicalExt = ".jpg"

	// MaxDimension bounds both output dimensions. Larger images are scaled
	// down preserving aspect ratio; smaller ones are never enlarged.
	MaxDimension = 2048

	// encodeQuality balances output size and fidelity. Fixed, not
	// per-request: identical input bytes always yield identical output.
	encodeQuality = 85
)

// Asset is the result of normalizing raw image bytes: one canonical encoded
// form with bounded dimensions.
type Asset struct {
	Data         []byte
	Width        int
	Height       int
	ContentType  string
	OriginalSize int64
	EncodedSize  int64
}

// CompressionRatio returns the size reduction as a rounded percentage.
func (a *Asset) CompressionRatio() int {
	if a.OriginalSize == 0 {
		return 0
	}
	return int(float64(100)*(1-float64(a.EncodedSize)/float64(a.OriginalSize)) + 0.5)
}

// Transcoder normalizes raw image bytes into the canonical encoded form.
// It holds no mutable state; concurrent invocations are independent.
type Transcoder struct {
	maxDim  int
	quality int
}

// NewTranscoder creates a transcoder with the default bound and quality.
func NewTranscoder() *Transcoder {
	return &Transcoder{maxDim: MaxDimension, quality: encodeQuality}
}

// Transcode decodes raw bytes as an image and re-encodes them into the
// canonical output format. The declared media type is never consulted:
// bytes that do not decode fail with ErrUnreadableImage. JPEG inputs have
// their EXIF orientation applied so stored images render upright.
func (t *Transcoder) Transcode(raw []byte) (*Asset, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}

	oriented := false
	if format == "jpeg" {
		if rotated, changed := applyOrientation(img, readOrientation(raw)); changed {
			img = rotated
			oriented = true
		}
	}

	bounds := img.Bounds()
	width, height := fitWithin(bounds.Dx(), bounds.Dy(), t.maxDim)
	resized := width != bounds.Dx() || height != bounds.Dy()
	if resized {
		img = scale(img, width, height)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: t.quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	encoded := buf.Bytes()

	// A small, already-optimized JPEG can grow when re-encoded. When no
	// resize or orientation fix happened, keeping the original bytes
	// preserves the never-larger-than-input guarantee.
	if format == "jpeg" && !resized && !oriented && len(encoded) >= len(raw) {
		encoded = raw
	}

	return &Asset{
		Data:         encoded,
		Width:        width,
		Height:       height,
		ContentType:  CanonicalContentType,
		OriginalSize: int64(len(raw)),
		EncodedSize:  int64(len(encoded)),
	}, nil
}

// fitWithin computes target dimensions that fit inside max×max while
// preserving aspect ratio. Images already within the bound keep their size.
func fitWithin(width, height, max int) (int, int) {
	if width <= max && height <= max {
		return width, height
	}
	if width >= height {
		scaled := (height*max + width/2) / width
		if scaled < 1 {
			scaled = 1
		}
		return max, scaled
	}
	scaled := (width*max + height/2) / height
	if scaled < 1 {
		scaled = 1
	}
	return scaled, max
}

func scale(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// readOrientation extracts the EXIF orientation tag from JPEG bytes.
// Missing or malformed EXIF data means the default orientation (1).
func readOrientation(raw []byte) int {
	meta, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 1
	}
	tag, err := meta.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	orientation, err := tag.Int(0)
	if err != nil || orientation < 1 || orientation > 8 {
		return 1
	}
	return orientation
}

// applyOrientation maps the eight EXIF orientations onto flips and
// rotations. The second return reports whether the image changed.
func applyOrientation(img image.Image, orientation int) (image.Image, bool) {
	switch orientation {
	case 2:
		return flipHorizontal(img), true
	case 3:
		return rotate180(img), true
	case 4:
		return rotate180(flipHorizontal(img)), true
	case 5:
		return rotate270(flipHorizontal(img)), true
	case 6:
		return rotate90(img), true
	case 7:
		return rotate90(flipHorizontal(img)), true
	case 8:
		return rotate270(img), true
	default:
		return img, false
	}
}

func flipHorizontal(img image.Image) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			dst.Set(bounds.Dx()-1-x, y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return dst
}

func rotate90(img image.Image) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dy(), bounds.Dx()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			dst.Set(bounds.Dy()-1-y, x, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return dst
}

func rotate180(img image.Image) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			dst.Set(bounds.Dx()-1-x, bounds.Dy()-1-y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return dst
}

func rotate270(img image.Image) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dy(), bounds.Dx()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			dst.Set(y, bounds.Dx()-1-x, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return dst
}

package transformation

import (
	"errors"
	"fmt"
	"image"
	"os"

	// imaging registers jpeg, png, gif, bmp and tiff; webp has to be added here.
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

// Output policy. These are fixed for every object the worker publishes.
const (
	MaxWidth    = 300
	MaxHeight   = 300
	JPEGQuality = 80
	ContentType = "image/jpeg"
	Extension   = ".jpeg"

	// MaxPixels caps the declared size of a source image (16383 x 16383). A
	// decoder allocates for the declared size before reading pixel data.
	MaxPixels int64 = 268_402_689
)

var (
	ErrDecode = errors.New("failed to decode image")
	ErrEncode = errors.New("failed to encode image")
)

// Result describes a transcoded artifact on local disk.
type Result struct {
	Path         string
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
	Size         int64
}

// Fit scales img down so it fits inside MaxWidth x MaxHeight, keeping the aspect
// ratio. Images already inside the bound are returned at their original size.
func Fit(img image.Image) image.Image {
	return imaging.Fit(img, MaxWidth, MaxHeight, imaging.Lanczos)
}

// Transcode reads the image at src, fits it and writes it to dst as JPEG.
// src is never modified.
func Transcode(src, dst string) (Result, error) {
	if err := checkDimensions(src); err != nil {
		return Result{}, err
	}
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	bounds := img.Bounds()

	out := Fit(img)

	if err := encodeJPEG(dst, out); err != nil {
		return Result{}, err
	}
	info, err := os.Stat(dst)
	if err != nil {
		return Result{}, fmt.Errorf("%w: stat output: %v", ErrEncode, err)
	}

	return Result{
		Path:         dst,
		Width:        out.Bounds().Dx(),
		Height:       out.Bounds().Dy(),
		SourceWidth:  bounds.Dx(),
		SourceHeight: bounds.Dy(),
		Size:         info.Size(),
	}, nil
}

// checkDimensions reads only the image header and rejects sources whose pixel
// count exceeds MaxPixels.
func checkDimensions(src string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > MaxPixels {
		return fmt.Errorf("%w: %dx%d exceeds the %d pixel limit", ErrDecode, cfg.Width, cfg.Height, MaxPixels)
	}
	return nil
}

func encodeJPEG(dst string, img image.Image) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: create output: %v", ErrEncode, err)
	}
	if err := imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	// Close reports deferred write errors such as a full disk.
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close output: %v", ErrEncode, err)
	}
	return nil
}

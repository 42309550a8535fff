package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"cardpress/internal/config"
	"cardpress/internal/services"
)

// Options controls a single normalization run.
type Options struct {
	TargetWidth      int
	TargetHeight     int
	DPI              int
	OutputFormat     string // jpeg or png
	JPEGQuality      int
	MinSourceWidth   int
	MinSourceHeight  int
	AspectTolerance  float64
	FitMode          string // cover or contain
	OptimizeForPrint bool
}

// OptionsFromConfig derives normalization options from the card settings.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TargetWidth:      cfg.TargetPixelWidth(),
		TargetHeight:     cfg.TargetPixelHeight(),
		DPI:              cfg.Card.DPI,
		OutputFormat:     cfg.Card.OutputFormat,
		JPEGQuality:      cfg.Card.JPEGQuality,
		MinSourceWidth:   cfg.Card.MinSourceWidth,
		MinSourceHeight:  cfg.Card.MinSourceHeight,
		AspectTolerance:  cfg.Card.AspectTolerance,
		FitMode:          cfg.Card.FitMode,
		OptimizeForPrint: cfg.Card.OptimizeForPrint,
	}
}

// Artifact is the result of a normalization run.
type Artifact struct {
	Data         []byte
	Format       string
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
	SourceFormat string
}

// Extension returns the file extension for the artifact's encoding.
func (a Artifact) Extension() string {
	if a.Format == "png" {
		return ".png"
	}
	return ".jpg"
}

// Normalize decodes raw, fits it to the target card dimensions, applies the
// optional print optimization pass, and encodes the result with DPI metadata.
func Normalize(raw []byte, opts Options) (Artifact, error) {
	if opts.TargetWidth < 1 || opts.TargetHeight < 1 {
		return Artifact{}, services.Wrap(services.ErrConfiguration, "normalize", "options", fmt.Sprintf("invalid target %dx%d", opts.TargetWidth, opts.TargetHeight), nil)
	}
	if len(raw) == 0 {
		return Artifact{}, services.Wrap(services.ErrInvalidImage, "normalize", "decode", "empty file", nil)
	}

	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrInvalidImage, "normalize", "decode", "unreadable image data", err)
	}

	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW < opts.MinSourceWidth || srcH < opts.MinSourceHeight {
		return Artifact{}, services.Wrap(services.ErrInvalidImage, "normalize", "dimensions",
			fmt.Sprintf("source %dx%d below minimum %dx%d", srcW, srcH, opts.MinSourceWidth, opts.MinSourceHeight), nil)
	}

	flat := flatten(src)
	fitted := fit(flat, opts)
	if opts.OptimizeForPrint {
		autocontrast(fitted, autocontrastCutoff)
		fitted = sharpen(fitted, sharpenAmount)
	}

	data, err := encode(fitted, opts)
	if err != nil {
		return Artifact{}, err
	}

	return Artifact{
		Data:         data,
		Format:       normalFormat(opts.OutputFormat),
		Width:        opts.TargetWidth,
		Height:       opts.TargetHeight,
		SourceWidth:  srcW,
		SourceHeight: srcH,
		SourceFormat: format,
	}, nil
}

// flatten composites the source over an opaque white background.
func flatten(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	return dst
}

// fit scales the image to the exact target dimensions. Sources whose aspect
// ratio is close to the target are resized directly; everything else is
// center-cropped (cover) or white-padded (contain).
func fit(src *image.NRGBA, opts Options) *image.NRGBA {
	srcW := src.Bounds().Dx()
	srcH := src.Bounds().Dy()
	targetAspect := float64(opts.TargetWidth) / float64(opts.TargetHeight)
	srcAspect := float64(srcW) / float64(srcH)

	dst := image.NewNRGBA(image.Rect(0, 0, opts.TargetWidth, opts.TargetHeight))

	if math.Abs(srcAspect-targetAspect) <= opts.AspectTolerance {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
		return dst
	}

	if opts.FitMode == "contain" {
		scale := math.Min(float64(opts.TargetWidth)/float64(srcW), float64(opts.TargetHeight)/float64(srcH))
		w := int(math.Round(float64(srcW) * scale))
		h := int(math.Round(float64(srcH) * scale))
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		x0 := (opts.TargetWidth - w) / 2
		y0 := (opts.TargetHeight - h) / 2
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
		xdraw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), src, src.Bounds(), xdraw.Src, nil)
		return dst
	}

	// cover: select the centered source window with the target aspect and
	// scale it in a single pass.
	cropW := srcW
	cropH := srcH
	if srcAspect > targetAspect {
		cropW = int(math.Round(float64(srcH) * targetAspect))
	} else {
		cropH = int(math.Round(float64(srcW) / targetAspect))
	}
	if cropW < 1 {
		cropW = 1
	}
	if cropH < 1 {
		cropH = 1
	}
	x0 := src.Bounds().Min.X + (srcW-cropW)/2
	y0 := src.Bounds().Min.Y + (srcH-cropH)/2
	window := image.Rect(x0, y0, x0+cropW, y0+cropH)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, window, xdraw.Src, nil)
	return dst
}

func encode(img *image.NRGBA, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	switch normalFormat(opts.OutputFormat) {
	case "png":
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, services.Wrap(services.ErrTransient, "normalize", "encode", "png encode failed", err)
		}
		return withPNGDensity(buf.Bytes(), opts.DPI)
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
			return nil, services.Wrap(services.ErrTransient, "normalize", "encode", "jpeg encode failed", err)
		}
		return withJPEGDensity(buf.Bytes(), opts.DPI)
	}
}

func normalFormat(format string) string {
	if format == "png" {
		return "png"
	}
	return "jpeg"
}

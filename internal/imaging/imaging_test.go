package imaging_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"cardpress/internal/imaging"
	"cardpress/internal/services"
)

func testOptions() imaging.Options {
	return imaging.Options{
		TargetWidth:      750,
		TargetHeight:     1050,
		DPI:              300,
		OutputFormat:     "jpeg",
		JPEGQuality:      95,
		MinSourceWidth:   50,
		MinSourceHeight:  50,
		AspectTolerance:  0.1,
		FitMode:          "cover",
		OptimizeForPrint: true,
	}
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// gradient avoids degenerate histograms so the optimize pass has work to do.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*img.Stride + x*4
			img.Pix[i] = uint8(64 + (x*128)/w)
			img.Pix[i+1] = uint8(64 + (y*128)/h)
			img.Pix[i+2] = 128
			img.Pix[i+3] = 255
		}
	}
	return img
}

func TestNormalizeProducesExactTargetDimensions(t *testing.T) {
	opts := testOptions()
	shapes := []struct {
		name string
		w, h int
	}{
		{"matching aspect", 500, 700},
		{"wide", 1200, 600},
		{"tall", 400, 1600},
		{"tiny but valid", 60, 90},
	}
	for _, tc := range shapes {
		t.Run(tc.name, func(t *testing.T) {
			art, err := imaging.Normalize(pngBytes(t, gradient(tc.w, tc.h)), opts)
			if err != nil {
				t.Fatalf("Normalize returned error: %v", err)
			}
			decoded, format, err := image.Decode(bytes.NewReader(art.Data))
			if err != nil {
				t.Fatalf("decode artifact: %v", err)
			}
			if format != "jpeg" {
				t.Fatalf("unexpected artifact format %q", format)
			}
			if decoded.Bounds().Dx() != opts.TargetWidth || decoded.Bounds().Dy() != opts.TargetHeight {
				t.Fatalf("artifact is %dx%d, want %dx%d",
					decoded.Bounds().Dx(), decoded.Bounds().Dy(), opts.TargetWidth, opts.TargetHeight)
			}
			if art.SourceWidth != tc.w || art.SourceHeight != tc.h {
				t.Fatalf("source dims recorded as %dx%d", art.SourceWidth, art.SourceHeight)
			}
		})
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	opts := testOptions()
	raw := pngBytes(t, gradient(600, 800))

	first, err := imaging.Normalize(raw, opts)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	second, err := imaging.Normalize(raw, opts)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Fatal("same input and options produced different output bytes")
	}
}

func TestNormalizeRejectsBadInput(t *testing.T) {
	opts := testOptions()
	cases := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"garbage", []byte("not an image at all")},
		{"truncated png", pngBytes(t, gradient(300, 300))[:20]},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := imaging.Normalize(tc.raw, opts)
			if !errors.Is(err, services.ErrInvalidImage) {
				t.Fatalf("expected invalid image error, got %v", err)
			}
		})
	}
}

func TestNormalizeRejectsUndersizedSource(t *testing.T) {
	opts := testOptions()
	opts.MinSourceWidth = 200
	opts.MinSourceHeight = 280

	_, err := imaging.Normalize(pngBytes(t, gradient(100, 100)), opts)
	if !errors.Is(err, services.ErrInvalidImage) {
		t.Fatalf("expected invalid image error, got %v", err)
	}
}

func TestNormalizeFlattensAlphaOntoWhite(t *testing.T) {
	opts := testOptions()
	opts.OptimizeForPrint = false
	opts.OutputFormat = "png"

	// Fully transparent source must come out white, not black.
	art, err := imaging.Normalize(pngBytes(t, solid(500, 700, color.NRGBA{0, 0, 0, 0})), opts)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	decoded, _, err := image.Decode(bytes.NewReader(art.Data))
	if err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	r, g, b, _ := decoded.At(decoded.Bounds().Dx()/2, decoded.Bounds().Dy()/2).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Fatalf("expected white center pixel, got %d %d %d", r>>8, g>>8, b>>8)
	}
}

func TestNormalizeContainPadsWithWhite(t *testing.T) {
	opts := testOptions()
	opts.FitMode = "contain"
	opts.OptimizeForPrint = false
	opts.OutputFormat = "png"

	// A wide gray bar in contain mode leaves white bands above and below.
	art, err := imaging.Normalize(pngBytes(t, solid(1000, 200, color.NRGBA{90, 90, 90, 255})), opts)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	decoded, _, err := image.Decode(bytes.NewReader(art.Data))
	if err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	r, g, b, _ := decoded.At(decoded.Bounds().Dx()/2, 2).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Fatalf("expected white padding at top, got %d %d %d", r>>8, g>>8, b>>8)
	}
	r, g, b, _ = decoded.At(decoded.Bounds().Dx()/2, decoded.Bounds().Dy()/2).RGBA()
	if r>>8 == 255 && g>>8 == 255 && b>>8 == 255 {
		t.Fatal("expected image content at center, found white")
	}
}

func TestNormalizeAcceptsJPEGSource(t *testing.T) {
	opts := testOptions()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(640, 900), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	art, err := imaging.Normalize(buf.Bytes(), opts)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if art.SourceFormat != "jpeg" {
		t.Fatalf("unexpected source format %q", art.SourceFormat)
	}
}

func TestJPEGArtifactCarriesDensity(t *testing.T) {
	opts := testOptions()
	art, err := imaging.Normalize(pngBytes(t, gradient(500, 700)), opts)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	idx := bytes.Index(art.Data, []byte("JFIF\x00"))
	if idx < 0 {
		t.Fatal("artifact missing JFIF APP0 segment")
	}
	// version(2) units(1) then X/Y density.
	density := binary.BigEndian.Uint16(art.Data[idx+8:])
	if density != 300 {
		t.Fatalf("unexpected X density %d", density)
	}
	if art.Data[idx+7] != 1 {
		t.Fatalf("unexpected density unit %d", art.Data[idx+7])
	}
}

func TestPNGArtifactCarriesDensity(t *testing.T) {
	opts := testOptions()
	opts.OutputFormat = "png"
	art, err := imaging.Normalize(pngBytes(t, gradient(500, 700)), opts)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	idx := bytes.Index(art.Data, []byte("pHYs"))
	if idx < 0 {
		t.Fatal("artifact missing pHYs chunk")
	}
	ppm := binary.BigEndian.Uint32(art.Data[idx+4:])
	// 300 dpi is 11811 pixels per meter.
	if ppm != 11811 {
		t.Fatalf("unexpected pixels per meter %d", ppm)
	}
	if art.Extension() != ".png" {
		t.Fatalf("unexpected extension %q", art.Extension())
	}

	decoded, format, err := image.Decode(bytes.NewReader(art.Data))
	if err != nil {
		t.Fatalf("decode artifact with pHYs: %v", err)
	}
	if format != "png" {
		t.Fatalf("unexpected format %q", format)
	}
	if decoded.Bounds().Dx() != opts.TargetWidth {
		t.Fatalf("unexpected width %d", decoded.Bounds().Dx())
	}
}

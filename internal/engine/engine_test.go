package engine

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/fpang/photo-derive/internal/geometry"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func appSegment(marker byte, payload []byte) []byte {
	seg := []byte{0xFF, marker, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	return append(seg, payload...)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	img := testImage(40, 30)

	for _, format := range []Format{JPEG, PNG, GIF, TIFF, BMP} {
		t.Run(string(format), func(t *testing.T) {
			data, err := Encode(img, format, 90)
			if err != nil {
				t.Fatalf("Encode(%s) error: %v", format, err)
			}
			decoded, got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			if got != format {
				t.Errorf("Decode format = %q, want %q", got, format)
			}
			if size := SizeOf(decoded); size != (geometry.Dimensions{Width: 40, Height: 30}) {
				t.Errorf("decoded size = %v, want 40x30", size)
			}
		})
	}
}

func TestWebPDecodesThroughImageDecode(t *testing.T) {
	data, err := Encode(testImage(64, 48), WebP, 80)
	if err != nil {
		t.Fatalf("Encode webp: %v", err)
	}

	img, format, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode webp: %v", err)
	}
	if format != WebP {
		t.Errorf("format = %q, want %q", format, WebP)
	}
	if got := SizeOf(img); got != (geometry.Dimensions{Width: 64, Height: 48}) {
		t.Errorf("size = %v, want 64x48", got)
	}
}

func TestDecodeUnsupported(t *testing.T) {
	_, _, err := Decode([]byte("definitely not an image"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Decode(garbage) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestEncodeUnknownFormat(t *testing.T) {
	_, err := Encode(testImage(2, 2), Format("avif"), 80)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Encode(avif) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestResizeAndCover(t *testing.T) {
	img := testImage(400, 300)

	resized := Resize(img, geometry.Dimensions{Width: 200, Height: 150})
	if got := SizeOf(resized); got != (geometry.Dimensions{Width: 200, Height: 150}) {
		t.Errorf("Resize size = %v, want 200x150", got)
	}

	same := Resize(img, geometry.Dimensions{Width: 400, Height: 300})
	if !bytes.Equal(same.Pix, img.Pix) {
		t.Error("Resize to the same size should copy pixels unchanged")
	}

	covered := Cover(img, geometry.Dimensions{Width: 300, Height: 300})
	if got := SizeOf(covered); got != (geometry.Dimensions{Width: 300, Height: 300}) {
		t.Errorf("Cover size = %v, want 300x300", got)
	}
}

func TestCoverRegion(t *testing.T) {
	tests := []struct {
		name      string
		src, want geometry.Dimensions
		target    geometry.Dimensions
	}{
		{"landscape to square", geometry.Dimensions{Width: 400, Height: 300}, geometry.Dimensions{Width: 300, Height: 300}, geometry.Dimensions{Width: 2048, Height: 2048}},
		{"portrait to square", geometry.Dimensions{Width: 300, Height: 400}, geometry.Dimensions{Width: 300, Height: 300}, geometry.Dimensions{Width: 2048, Height: 2048}},
		{"thin banner", geometry.Dimensions{Width: 2048, Height: 5}, geometry.Dimensions{Width: 5, Height: 5}, geometry.Dimensions{Width: 2048, Height: 2048}},
		{"one pixel strip", geometry.Dimensions{Width: 1, Height: 2048}, geometry.Dimensions{Width: 1, Height: 1}, geometry.Dimensions{Width: 2048, Height: 2048}},
		{"4:5 target", geometry.Dimensions{Width: 400, Height: 400}, geometry.Dimensions{Width: 320, Height: 400}, geometry.Dimensions{Width: 800, Height: 1000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coverRegion(tt.src, tt.target); got != tt.want {
				t.Errorf("coverRegion(%v, %v) = %v, want %v", tt.src, tt.target, got, tt.want)
			}
		})
	}
}

func TestCoverThinSources(t *testing.T) {
	square := geometry.Dimensions{Width: 2048, Height: 2048}
	for _, src := range []geometry.Dimensions{
		{Width: 2048, Height: 5},
		{Width: 1, Height: 2048},
		{Width: 5, Height: 2048},
	} {
		t.Run(src.String(), func(t *testing.T) {
			covered := Cover(testImage(src.Width, src.Height), square)
			if got := SizeOf(covered); got != square {
				t.Errorf("Cover(%v) size = %v, want %v", src, got, square)
			}
		})
	}
}

func TestExtendIsTransparentAroundContent(t *testing.T) {
	img := testImage(10, 6)
	out := Extend(img, geometry.Padding{Top: 2, Bottom: 2})

	if got := SizeOf(out); got != (geometry.Dimensions{Width: 10, Height: 10}) {
		t.Fatalf("Extend size = %v, want 10x10", got)
	}
	if a := out.NRGBAAt(5, 0).A; a != 0 {
		t.Errorf("padding alpha = %d, want 0", a)
	}
	if a := out.NRGBAAt(5, 9).A; a != 0 {
		t.Errorf("padding alpha = %d, want 0", a)
	}
	if got, want := out.NRGBAAt(3, 2), img.NRGBAAt(3, 0); got != want {
		t.Errorf("content pixel = %v, want %v", got, want)
	}
}

func TestCompositeCenterKeepsBackgroundUnderTransparency(t *testing.T) {
	bg := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for i := range bg.Pix {
		bg.Pix[i] = 200
	}
	layer := Extend(testImage(10, 4), geometry.Padding{Top: 3, Bottom: 3})

	out := CompositeCenter(bg, layer)
	if got := out.NRGBAAt(0, 0); got != bg.NRGBAAt(0, 0) {
		t.Errorf("corner = %v, want background %v", got, bg.NRGBAAt(0, 0))
	}
	if got, want := out.NRGBAAt(4, 5), layer.NRGBAAt(4, 5); got != want {
		t.Errorf("centre = %v, want layer %v", got, want)
	}
}

func TestCrop(t *testing.T) {
	img := testImage(100, 80)
	out := Crop(img, image.Rect(10, 5, 60, 45))
	if got := SizeOf(out); got != (geometry.Dimensions{Width: 50, Height: 40}) {
		t.Fatalf("Crop size = %v, want 50x40", got)
	}
	if got, want := out.NRGBAAt(0, 0), img.NRGBAAt(10, 5); got != want {
		t.Errorf("Crop origin = %v, want %v", got, want)
	}
}

func TestJPEGMetadataPassthrough(t *testing.T) {
	var src bytes.Buffer
	if err := jpeg.Encode(&src, testImage(16, 16), nil); err != nil {
		t.Fatalf("jpeg.Encode error: %v", err)
	}

	exif := appSegment(markerAPP1, append([]byte("Exif\x00\x00"), "MM\x00*fake-ifd"...))
	icc := appSegment(markerAPP2, append([]byte("ICC_PROFILE\x00"), 1, 1, 'p', 'r', 'o', 'f'))
	xmp := appSegment(markerAPP1, []byte("http://ns.adobe.com/xap/1.0/\x00<x/>"))

	tagged := Metadata{Segments: [][]byte{exif, xmp, icc}}.Inject(src.Bytes())

	meta := ExtractJPEGMetadata(tagged)
	if len(meta.Segments) != 2 {
		t.Fatalf("extracted %d segments, want 2 (EXIF and ICC only)", len(meta.Segments))
	}
	if !bytes.Equal(meta.Segments[0], exif) || !bytes.Equal(meta.Segments[1], icc) {
		t.Error("extracted segments do not match the injected EXIF and ICC segments")
	}

	out, err := Encode(testImage(8, 8), JPEG, 95)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	withMeta := meta.Inject(out)
	if _, _, err := Decode(withMeta); err != nil {
		t.Fatalf("Decode after Inject error: %v", err)
	}
	if again := ExtractJPEGMetadata(withMeta); len(again.Segments) != 2 {
		t.Errorf("re-extracted %d segments, want 2", len(again.Segments))
	}
}

func TestMetadataIgnoresNonJPEG(t *testing.T) {
	png, err := Encode(testImage(4, 4), PNG, 0)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if meta := ExtractJPEGMetadata(png); !meta.Empty() {
		t.Errorf("ExtractJPEGMetadata(png) = %d segments, want 0", len(meta.Segments))
	}
	seg := Metadata{Segments: [][]byte{appSegment(markerAPP1, []byte("Exif\x00\x00"))}}
	if got := seg.Inject(png); !bytes.Equal(got, png) {
		t.Error("Inject should leave non-JPEG buffers unchanged")
	}
}

package imagecodec

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

// splitImage renders a w x h image whose left half is red and right half blue.
func splitImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, red)
			} else {
				img.Set(x, y, blue)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func decodeResult(t *testing.T, dataURL string) image.Image {
	t.Helper()
	data, mime, err := DecodeDataURL(dataURL)
	if err != nil {
		t.Fatalf("DecodeDataURL returned error: %v", err)
	}
	if mime != MIMEPNG {
		t.Fatalf("mime = %q, want %q", mime, MIMEPNG)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func TestEncodeProducesPNGDataURL(t *testing.T) {
	codec := New(Options{})
	out, err := codec.Encode(bytes.NewReader(splitImage(t, 8, 4)))
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if !strings.HasPrefix(out, "data:image/png;base64,") {
		t.Fatalf("unexpected prefix: %q", out[:30])
	}
	img := decodeResult(t, out)
	if got := img.Bounds().Size(); got != image.Pt(8, 4) {
		t.Fatalf("size = %v, want 8x4", got)
	}
}

func TestEncodeRejectsNonImage(t *testing.T) {
	codec := New(Options{})
	_, err := codec.Encode(strings.NewReader("definitely not an image"))
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestEncodeRejectsOversizedFile(t *testing.T) {
	codec := New(Options{MaxBytes: 16})
	_, err := codec.Encode(bytes.NewReader(splitImage(t, 8, 8)))
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestCropCoverFitsWideImage(t *testing.T) {
	codec := New(Options{})
	src := EncodeDataURL(MIMEPNG, splitImage(t, 40, 20))

	out, err := codec.Crop(context.Background(), src, Square)
	if err != nil {
		t.Fatalf("Crop returned error: %v", err)
	}
	img := decodeResult(t, out)
	if got := img.Bounds().Size(); got != image.Pt(20, 20) {
		t.Fatalf("size = %v, want 20x20", got)
	}
	// Crop window spans source x in [10, 30): left half red, right half blue.
	if got := color.RGBAModel.Convert(img.At(0, 10)); got != red {
		t.Fatalf("left pixel = %v, want red", got)
	}
	if got := color.RGBAModel.Convert(img.At(19, 10)); got != blue {
		t.Fatalf("right pixel = %v, want blue", got)
	}
}

func TestCropTallImageToLandscape(t *testing.T) {
	codec := New(Options{})
	src := EncodeDataURL(MIMEPNG, splitImage(t, 30, 60))

	out, err := codec.Crop(context.Background(), src, AspectRatio{W: 3, H: 2})
	if err != nil {
		t.Fatalf("Crop returned error: %v", err)
	}
	if got := decodeResult(t, out).Bounds().Size(); got != image.Pt(30, 20) {
		t.Fatalf("size = %v, want 30x20", got)
	}
}

func TestCropDownscalesToMaxEdge(t *testing.T) {
	codec := New(Options{MaxEdge: 50})
	src := EncodeDataURL(MIMEPNG, splitImage(t, 200, 100))

	out, err := codec.Crop(context.Background(), src, Square)
	if err != nil {
		t.Fatalf("Crop returned error: %v", err)
	}
	if got := decodeResult(t, out).Bounds().Size(); got != image.Pt(50, 50) {
		t.Fatalf("size = %v, want 50x50", got)
	}
}

func TestCropFetchesRemoteURL(t *testing.T) {
	fixture := splitImage(t, 12, 6)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/result.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(fixture)
	}))
	defer srv.Close()

	codec := New(Options{HTTPClient: srv.Client()})
	out, err := codec.Crop(context.Background(), srv.URL+"/result.png", Square)
	if err != nil {
		t.Fatalf("Crop returned error: %v", err)
	}
	if got := decodeResult(t, out).Bounds().Size(); got != image.Pt(6, 6) {
		t.Fatalf("size = %v, want 6x6", got)
	}

	_, err = codec.Crop(context.Background(), srv.URL+"/missing.png", Square)
	var cropErr *CropError
	if !errors.As(err, &cropErr) {
		t.Fatalf("expected CropError for missing remote, got %v", err)
	}
}

func TestCropRejectsBadSources(t *testing.T) {
	codec := New(Options{})
	cases := []struct {
		name string
		src  string
	}{
		{name: "empty", src: ""},
		{name: "relative path", src: "images/a.png"},
		{name: "corrupt payload", src: EncodeDataURL(MIMEPNG, []byte("nope"))},
		{name: "bad base64", src: "data:image/png;base64,@@@"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := codec.Crop(context.Background(), tc.src, Square)
			var cropErr *CropError
			if !errors.As(err, &cropErr) {
				t.Fatalf("expected CropError, got %v", err)
			}
		})
	}
}

// withDeclaredSize rewrites the IHDR dimensions of a PNG without touching
// its pixel data, yielding a tiny file that claims a huge image.
func withDeclaredSize(t *testing.T, data []byte, w, h uint32) []byte {
	t.Helper()
	out := append([]byte(nil), data...)
	if string(out[12:16]) != "IHDR" {
		t.Fatalf("fixture has no leading IHDR chunk")
	}
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestEncodeAndCropSquaresUpload(t *testing.T) {
	codec := New(Options{})
	out, err := codec.EncodeAndCrop(context.Background(), bytes.NewReader(splitImage(t, 40, 20)), Square)
	if err != nil {
		t.Fatalf("EncodeAndCrop returned error: %v", err)
	}
	if got := decodeResult(t, out).Bounds().Size(); got != image.Pt(20, 20) {
		t.Fatalf("size = %v, want 20x20", got)
	}
}

func TestPixelLimitRejectsOversizedDimensions(t *testing.T) {
	huge := withDeclaredSize(t, splitImage(t, 4, 4), 12000, 12000)
	if len(huge) > 1024 {
		t.Fatalf("fixture unexpectedly large: %d bytes", len(huge))
	}

	tests := []struct {
		name string
		opts Options
		file []byte
	}{
		{name: "declared 12000x12000 with default limit", opts: Options{}, file: huge},
		{name: "real image over a small limit", opts: Options{MaxPixels: 100}, file: splitImage(t, 20, 20)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			codec := New(tc.opts)

			_, err := codec.EncodeAndCrop(context.Background(), bytes.NewReader(tc.file), Square)
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) || !errors.Is(err, ErrTooManyPixels) {
				t.Fatalf("EncodeAndCrop: expected DecodeError wrapping ErrTooManyPixels, got %v", err)
			}

			_, err = codec.Encode(bytes.NewReader(tc.file))
			if !errors.As(err, &decodeErr) || !errors.Is(err, ErrTooManyPixels) {
				t.Fatalf("Encode: expected DecodeError wrapping ErrTooManyPixels, got %v", err)
			}

			_, err = codec.Crop(context.Background(), EncodeDataURL(MIMEPNG, tc.file), Square)
			var cropErr *CropError
			if !errors.As(err, &cropErr) || !errors.Is(err, ErrTooManyPixels) {
				t.Fatalf("Crop: expected CropError wrapping ErrTooManyPixels, got %v", err)
			}
		})
	}
}

func TestParseAspectRatio(t *testing.T) {
	tests := []struct {
		in      string
		want    AspectRatio
		wantErr bool
	}{
		{in: "1:1", want: Square},
		{in: " 16 : 9 ", want: AspectRatio{W: 16, H: 9}},
		{in: "4", wantErr: true},
		{in: "0:1", wantErr: true},
		{in: "a:b", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseAspectRatio(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseAspectRatio(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseAspectRatio(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}

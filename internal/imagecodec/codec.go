package imagecodec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// AspectRatio is a width:height ratio used for cover-fit cropping.
type AspectRatio struct {
	W int
	H int
}

// Square is the ratio applied to every upload and download.
var Square = AspectRatio{W: 1, H: 1}

func (r AspectRatio) String() string {
	return strconv.Itoa(r.W) + ":" + strconv.Itoa(r.H)
}

// ParseAspectRatio parses "W:H" with positive integers.
func ParseAspectRatio(s string) (AspectRatio, error) {
	a, b, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return AspectRatio{}, fmt.Errorf("invalid aspect ratio %q", s)
	}
	w, errW := strconv.Atoi(strings.TrimSpace(a))
	h, errH := strconv.Atoi(strings.TrimSpace(b))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return AspectRatio{}, fmt.Errorf("invalid aspect ratio %q", s)
	}
	return AspectRatio{W: w, H: h}, nil
}

// Options controls how a Codec loads and resamples images.
type Options struct {
	HTTPClient *http.Client
	// MaxEdge caps the longest side of a cropped image. Zero keeps the
	// native resolution of the crop.
	MaxEdge int
	// MaxBytes caps how much is read from a file or remote source.
	MaxBytes int64
	// MaxPixels caps width*height as declared by the image header, checked
	// before any pixel data is decoded.
	MaxPixels int64
}

// Codec turns user files into canonical data URLs and crops images. It keeps
// no mutable state and is safe for concurrent use.
type Codec struct {
	client    *http.Client
	maxEdge   int
	maxBytes  int64
	maxPixels int64
}

const (
	defaultMaxBytes  = 32 << 20
	defaultMaxPixels = 40_000_000
)

// ErrTooManyPixels is returned for images whose declared dimensions exceed
// the codec's pixel limit.
var ErrTooManyPixels = errors.New("image dimensions exceed pixel limit")

// New constructs a Codec. A nil HTTP client gets a 30 second timeout.
func New(opts Options) *Codec {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	maxPixels := opts.MaxPixels
	if maxPixels <= 0 {
		maxPixels = defaultMaxPixels
	}
	maxEdge := opts.MaxEdge
	if maxEdge < 0 {
		maxEdge = 0
	}
	return &Codec{client: client, maxEdge: maxEdge, maxBytes: maxBytes, maxPixels: maxPixels}
}

// Encode reads an image file and returns it as a PNG data URL.
func (c *Codec) Encode(r io.Reader) (string, error) {
	img, err := c.readImage(r)
	if err != nil {
		return "", err
	}
	out, err := encodePNG(img)
	if err != nil {
		return "", &DecodeError{Err: err}
	}
	return EncodeDataURL(MIMEPNG, out), nil
}

// Crop loads src (a data URL or an http(s) URL), center-crops it to ratio
// without stretching and returns the result as a PNG data URL.
func (c *Codec) Crop(ctx context.Context, src string, ratio AspectRatio) (string, error) {
	if ratio.W <= 0 || ratio.H <= 0 {
		return "", &CropError{Source: src, Err: fmt.Errorf("invalid aspect ratio %s", ratio)}
	}
	data, err := c.load(ctx, src)
	if err != nil {
		return "", &CropError{Source: src, Err: err}
	}
	img, err := c.decode(data)
	if err != nil {
		return "", &CropError{Source: src, Err: err}
	}
	out, err := encodePNG(coverCrop(img, ratio, c.maxEdge))
	if err != nil {
		return "", &CropError{Source: src, Err: err}
	}
	return EncodeDataURL(MIMEPNG, out), nil
}

// EncodeAndCrop is the upload path: decode the file once and crop it to
// ratio.
func (c *Codec) EncodeAndCrop(ctx context.Context, r io.Reader, ratio AspectRatio) (string, error) {
	if ratio.W <= 0 || ratio.H <= 0 {
		return "", &CropError{Source: "upload", Err: fmt.Errorf("invalid aspect ratio %s", ratio)}
	}
	img, err := c.readImage(r)
	if err != nil {
		return "", err
	}
	out, err := encodePNG(coverCrop(img, ratio, c.maxEdge))
	if err != nil {
		return "", &CropError{Source: "upload", Err: err}
	}
	return EncodeDataURL(MIMEPNG, out), nil
}

func (c *Codec) readImage(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, c.maxBytes+1))
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("read file: %w", err)}
	}
	if int64(len(data)) > c.maxBytes {
		return nil, &DecodeError{Err: fmt.Errorf("file exceeds %d bytes", c.maxBytes)}
	}
	img, err := c.decode(data)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}

// decode checks the header dimensions against maxPixels before allocating
// the pixel buffer.
func (c *Codec) decode(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > c.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func (c *Codec) load(ctx context.Context, src string) ([]byte, error) {
	src = strings.TrimSpace(src)
	switch {
	case IsDataURL(src):
		data, _, err := DecodeDataURL(src)
		return data, err
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return c.fetch(ctx, src)
	case src == "":
		return nil, errors.New("empty image source")
	default:
		return nil, errors.New("unsupported image source")
	}
}

func (c *Codec) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch image status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", c.maxBytes)
	}
	return data, nil
}

// coverCrop selects the largest centered region of src with the target
// ratio and optionally scales it down so its long edge is at most maxEdge.
func coverCrop(src image.Image, ratio AspectRatio, maxEdge int) image.Image {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()

	cw, ch := sw, sh
	if sw*ratio.H > sh*ratio.W {
		cw = sh * ratio.W / ratio.H
	} else {
		ch = sw * ratio.H / ratio.W
	}
	cw, ch = max(cw, 1), max(ch, 1)

	x0 := b.Min.X + (sw-cw)/2
	y0 := b.Min.Y + (sh-ch)/2
	region := image.Rect(x0, y0, x0+cw, y0+ch)

	dw, dh := cw, ch
	if maxEdge > 0 && max(cw, ch) > maxEdge {
		if cw >= ch {
			dw = maxEdge
			dh = max(ch*maxEdge/cw, 1)
		} else {
			dh = maxEdge
			dw = max(cw*maxEdge/ch, 1)
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	if dw == cw && dh == ch {
		xdraw.Draw(dst, dst.Bounds(), src, region.Min, xdraw.Src)
		return dst
	}
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, region, xdraw.Src, nil)
	return dst
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

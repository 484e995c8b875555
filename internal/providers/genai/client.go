package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	sdk "google.golang.org/genai"

	"photostudio/internal/imagecodec"
)

const (
	DefaultImageModel = "gemini-2.5-flash-image-preview"
	DefaultTextModel  = "gemini-2.5-flash"
)

// ErrNoImage is returned when the model answered without an image part.
var ErrNoImage = errors.New("response did not contain image data")

// ErrNoText is returned when the model answered without any text.
var ErrNoText = errors.New("response did not contain text")

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	ImageModel string
	TextModel  string
	HTTPClient *http.Client
	Logger     zerolog.Logger
	// Limiter paces every remote call. Nil disables pacing.
	Limiter *rate.Limiter
}

// contentModels is the subset of the SDK models service the client uses.
type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*sdk.Content, config *sdk.GenerateContentConfig) (*sdk.GenerateContentResponse, error)
}

// Client is the remote generation collaborator. Without an API key it
// renders deterministic synthetic images so the studio stays usable in
// local and CI environments.
type Client struct {
	models     contentModels
	imageModel string
	textModel  string
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewClient constructs a Gemini client. An empty API key selects the
// synthetic generator.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	c := &Client{
		imageModel: firstNonEmpty(opts.ImageModel, DefaultImageModel),
		textModel:  firstNonEmpty(opts.TextModel, DefaultTextModel),
		limiter:    opts.Limiter,
		logger:     opts.Logger,
	}

	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return c, nil
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	cfg := &sdk.ClientConfig{
		APIKey:     apiKey,
		Backend:    sdk.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.HTTPOptions = sdk.HTTPOptions{BaseURL: base}
	}
	client, err := sdk.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("genai: create client: %w", err)
	}
	c.models = client.Models
	return c, nil
}

// Synthetic reports whether remote calls are replaced by local rendering.
func (c *Client) Synthetic() bool {
	return c.models == nil
}

// ImageModel returns the configured image model identifier.
func (c *Client) ImageModel() string {
	return c.imageModel
}

// Generate sends the instruction and the encoded images to the image model
// and returns the first image of the response as a data URL.
func (c *Client) Generate(ctx context.Context, instruction string, images []string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	if c.Synthetic() {
		out, err := renderSyntheticImage(instruction, images)
		if err != nil {
			return "", err
		}
		c.logger.Debug().
			Str("model", c.imageModel).
			Int("images", len(images)).
			Msg("genai: generated synthetic image")
		return out, nil
	}

	parts := make([]*sdk.Part, 0, len(images)+1)
	parts = append(parts, sdk.NewPartFromText(instruction))
	for i, img := range images {
		data, mime, err := imagecodec.DecodeDataURL(img)
		if err != nil {
			return "", fmt.Errorf("genai: input image %d: %w", i+1, err)
		}
		parts = append(parts, sdk.NewPartFromBytes(data, firstNonEmpty(mime, imagecodec.MIMEPNG)))
	}
	contents := []*sdk.Content{sdk.NewContentFromParts(parts, sdk.RoleUser)}

	started := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.imageModel, contents, &sdk.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	})
	if err != nil {
		return "", fmt.Errorf("genai: invoke gemini: %w", err)
	}

	for _, cand := range candidates(resp) {
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			c.logger.Debug().
				Str("model", c.imageModel).
				Int("bytes", len(part.InlineData.Data)).
				Dur("elapsed", time.Since(started)).
				Msg("genai: received image")
			return imagecodec.EncodeDataURL(firstNonEmpty(part.InlineData.MIMEType, imagecodec.MIMEPNG), part.InlineData.Data), nil
		}
	}
	return "", ErrNoImage
}

// GenerateText asks the text model for a plain-text answer.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	if c.Synthetic() {
		return "", errors.New("genai: text generation requires an api key")
	}
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.models.GenerateContent(ctx, c.textModel, sdk.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("genai: invoke gemini: %w", err)
	}
	var b strings.Builder
	for _, cand := range candidates(resp) {
		for _, part := range cand.Content.Parts {
			if part != nil && part.Text != "" {
				b.WriteString(part.Text)
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return ctx.Err()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("genai: rate limit wait: %w", err)
	}
	return nil
}

func candidates(resp *sdk.GenerateContentResponse) []*sdk.Candidate {
	if resp == nil {
		return nil
	}
	out := make([]*sdk.Candidate, 0, len(resp.Candidates))
	for _, cand := range resp.Candidates {
		if cand != nil && cand.Content != nil {
			out = append(out, cand)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

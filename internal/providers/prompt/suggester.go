package prompt

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	geminiProviderName = "gemini"
	staticProviderName = "static"
)

// ErrSuggestionFailed is returned when no provider produced a style.
var ErrSuggestionFailed = errors.New("failed to generate a creative style")

// Suggestion is a single-sentence style description.
type Suggestion struct {
	Theme    string `json:"theme"`
	Style    string `json:"style"`
	Provider string `json:"provider"`
}

// Suggester turns a theme into a concrete photoshoot style.
type Suggester interface {
	Suggest(ctx context.Context, theme string) (*Suggestion, error)
}

// TextGenerator is the text half of the remote model client.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// GeminiOptions configures a GeminiSuggester.
type GeminiOptions struct {
	Client   TextGenerator
	Fallback Suggester
	Logger   zerolog.Logger
}

// GeminiSuggester asks the text model for a style and falls back when the
// model is unavailable.
type GeminiSuggester struct {
	client   TextGenerator
	fallback Suggester
	logger   zerolog.Logger
}

func NewGeminiSuggester(opts GeminiOptions) (*GeminiSuggester, error) {
	if opts.Client == nil {
		return nil, errors.New("prompt: text client is required")
	}
	return &GeminiSuggester{client: opts.Client, fallback: opts.Fallback, logger: opts.Logger}, nil
}

func (g *GeminiSuggester) Suggest(ctx context.Context, theme string) (*Suggestion, error) {
	theme = normalizeTheme(theme)
	text, err := g.client.GenerateText(ctx, buildSuggestPrompt(theme))
	if err != nil {
		g.logger.Warn().Err(err).Str("theme", theme).Msg("prompt: gemini suggestion failed")
		return g.useFallback(ctx, theme)
	}
	style := firstLine(text)
	if style == "" {
		return g.useFallback(ctx, theme)
	}
	return &Suggestion{Theme: theme, Style: style, Provider: geminiProviderName}, nil
}

func (g *GeminiSuggester) useFallback(ctx context.Context, theme string) (*Suggestion, error) {
	if g.fallback == nil {
		return nil, ErrSuggestionFailed
	}
	return g.fallback.Suggest(ctx, theme)
}

func buildSuggestPrompt(theme string) string {
	return fmt.Sprintf("Generate a creative and specific style for a photoshoot. The style should be described in a single, detailed sentence. Style theme: %s", theme)
}

// StaticSuggester composes a style locally from a fixed set of phrasings.
type StaticSuggester struct{}

func NewStaticSuggester() *StaticSuggester {
	return &StaticSuggester{}
}

var staticStyles = []string{
	"%s photoshoot with soft golden-hour light, shallow depth of field and warm film grain",
	"%s editorial portrait lit by hard rim light against a deep, moody backdrop",
	"%s scene rendered in muted pastel tones with airy, diffused daylight",
	"%s concept captured in high-contrast black and white with dramatic shadows",
	"%s aesthetic with saturated neon accents, rain-slicked reflections and anamorphic flares",
}

func (s *StaticSuggester) Suggest(ctx context.Context, theme string) (*Suggestion, error) {
	theme = normalizeTheme(theme)
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(theme)))
	pattern := staticStyles[int(h.Sum32()%uint32(len(staticStyles)))]
	style := fmt.Sprintf(pattern, cases.Title(language.Und).String(theme)) + "."
	return &Suggestion{Theme: theme, Style: style, Provider: staticProviderName}, nil
}

func normalizeTheme(theme string) string {
	theme = strings.Join(strings.Fields(theme), " ")
	if theme == "" {
		return "timeless portrait"
	}
	return theme
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(text), `"`))
}

var (
	_ Suggester = (*GeminiSuggester)(nil)
	_ Suggester = (*StaticSuggester)(nil)
)

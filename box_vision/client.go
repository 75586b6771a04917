// Package boxvision implements the vision collaborators for the pick cycle:
// an OpenAI-compatible multimodal LLM client for medicine-box detection and
// prescription reading, and an HTTP client for the segmentation service.
// Misses are value-level results; errors mean the collaborator itself failed.
package boxvision

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"

	openai "github.com/sashabaranov/go-openai"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/rimage"
	rdkutils "go.viam.com/rdk/utils"
)

const (
	detectMaxTokens = 100
	listMaxTokens   = 500
	temperature     = 0.1
)

const detectSystemPrompt = `You are a medicine box detection assistant. Identify the requested medicine box in the image and report its bounding box. Coordinates are pixels with the origin at the top-left corner, x to the right, y down. Respond with exactly one JSON object of the form {"x1": <int>, "y1": <int>, "x2": <int>, "y2": <int>} giving the top-left and bottom-right corners. If the requested medicine is not visible respond with {"x1": 0, "y1": 0, "x2": 0, "y2": 0}. Do not add any other text.`

const prescriptionSystemPrompt = `You are a prescription reading assistant. Extract the medicine names from the prescription image and respond with exactly one JSON array of strings, for example ["amoxicillin", "ibuprofen"]. Keep only the medicine name itself: no strength, dosage form, packaging, or usage lines. If a quantity follows a name (such as "x2" or "2 boxes"), repeat that name that many times. Preserve the order the medicines appear in. If nothing is readable respond with []. Do not add any other text.`

// Config holds the LLM client settings.
type Config struct {
	APIKey  string `yaml:"-"`
	BaseURL string `yaml:"base_url"` // OpenAI-compatible endpoint root
	Model   string `yaml:"model"`
}

// DefaultConfig returns the vision model settings used in production.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
		Model:   "qwen-vl-max-latest",
	}
}

// Client calls a multimodal chat-completions API for detection and
// prescription reading.
type Client struct {
	api    *openai.Client
	model  string
	logger logging.Logger
}

// NewClient builds the LLM vision client.
func NewClient(cfg Config, logger logging.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		return nil, ErrMissingModel
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// DetectBox asks the model for the bounding box of the named medicine in the
// image, in pixel coordinates. A miss (model reports not-found, unparseable
// reply, or a degenerate box) returns found=false with no error.
func (c *Client) DetectBox(ctx context.Context, img image.Image, name string) (image.Rectangle, bool, error) {
	dataURL, err := encodeDataURL(ctx, img)
	if err != nil {
		return image.Rectangle{}, false, err
	}
	bounds := img.Bounds()
	userPrompt := fmt.Sprintf(
		"Find the medicine box labeled %q in this %dx%d image. Return only the JSON bounding box.",
		name, bounds.Dx(), bounds.Dy(),
	)

	content, err := c.complete(ctx, detectSystemPrompt, userPrompt, dataURL, detectMaxTokens)
	if err != nil {
		return image.Rectangle{}, false, fmt.Errorf("detect %q: %w", name, err)
	}

	rect, ok := parseBBox(content)
	if !ok || rect == (image.Rectangle{}) {
		c.logger.Debugf("no box for %q in reply: %s", name, content)
		return image.Rectangle{}, false, nil
	}
	rect = rect.Intersect(bounds)
	if rect.Empty() {
		return image.Rectangle{}, false, nil
	}
	return rect, true, nil
}

// ReadPrescription extracts the ordered medicine list from a prescription
// image. An unreadable prescription returns an empty list with no error.
func (c *Client) ReadPrescription(ctx context.Context, img image.Image) ([]string, error) {
	dataURL, err := encodeDataURL(ctx, img)
	if err != nil {
		return nil, err
	}
	content, err := c.complete(ctx,
		prescriptionSystemPrompt,
		"List the medicine names on this prescription as a JSON array only.",
		dataURL, listMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("read prescription: %w", err)
	}
	names := parseNameList(content)
	if len(names) == 0 {
		c.logger.Debugf("no medicines parsed from reply: %s", content)
	}
	return names, nil
}

func (c *Client) complete(ctx context.Context, system, user, imageURL string, maxTokens int) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imageURL},
					},
					{Type: openai.ChatMessagePartTypeText, Text: user},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func encodeDataURL(ctx context.Context, img image.Image) (string, error) {
	if img == nil {
		return "", ErrNilImage
	}
	buf, err := rimage.EncodeImage(ctx, img, rdkutils.MimeTypeJPEG)
	if err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf), nil
}

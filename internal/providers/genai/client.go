// Package genai implements the capability client on top of the Gemini API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"vaultx/internal/capability"
	"vaultx/internal/domain"
	"vaultx/internal/infra"
)

// Models names the model used for each capability.
type Models struct {
	Spellcheck string
	Image      string
	Edit       string
	Video      string
	ChatFast   string
	ChatSmart  string
}

// DefaultModels mirrors the defaults documented for the service configuration.
func DefaultModels() Models {
	return Models{
		Spellcheck: "gemini-2.5-flash-lite",
		Image:      "imagen-4.0-generate-001",
		Edit:       "gemini-2.5-flash-image",
		Video:      "veo-3.1-fast-generate-preview",
		ChatFast:   "gemini-2.5-flash-lite",
		ChatSmart:  "gemini-3-pro-preview",
	}
}

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey          string
	BaseURL         string
	Models          Models
	ThinkingBudget  int
	VideoResolution string
	HTTPClient      *http.Client
	Logger          *infra.Logger
}

type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
	GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
	GenerateVideos(ctx context.Context, model string, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

type operationsAPI interface {
	GetVideosOperation(ctx context.Context, operation *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

type backend struct {
	models     modelsAPI
	operations operationsAPI
}

// Client talks to Gemini through the official SDK. The API key can be replaced
// at runtime; the SDK client is rebuilt lazily on the next call.
type Client struct {
	baseURL        string
	models         Models
	thinkingBudget int32
	resolution     string
	httpClient     *http.Client
	logger         *infra.Logger

	mu      sync.RWMutex
	apiKey  string
	backend *backend
	// Finished jobs that returned bytes instead of a URI, keyed by locator.
	inline sync.Map
}

// NewClient constructs a Gemini client with sane defaults. A missing API key
// is not an error: every call then fails with capability.ErrCredentialRequired
// until SetAPIKey is called.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	models := DefaultModels()
	if opts.Models.Spellcheck != "" {
		models.Spellcheck = opts.Models.Spellcheck
	}
	if opts.Models.Image != "" {
		models.Image = opts.Models.Image
	}
	if opts.Models.Edit != "" {
		models.Edit = opts.Models.Edit
	}
	if opts.Models.Video != "" {
		models.Video = opts.Models.Video
	}
	if opts.Models.ChatFast != "" {
		models.ChatFast = opts.Models.ChatFast
	}
	if opts.Models.ChatSmart != "" {
		models.ChatSmart = opts.Models.ChatSmart
	}

	budget := opts.ThinkingBudget
	if budget <= 0 {
		budget = 32768
	}
	resolution := opts.VideoResolution
	if resolution == "" {
		resolution = "720p"
	}

	return &Client{
		apiKey:         strings.TrimSpace(opts.APIKey),
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		models:         models,
		thinkingBudget: int32(budget),
		resolution:     resolution,
		httpClient:     client,
		logger:         infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// SetAPIKey swaps the credential used for subsequent calls.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = strings.TrimSpace(key)
	c.backend = nil
}

// HasAPIKey reports whether a credential is configured.
func (c *Client) HasAPIKey() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey != ""
}

func (c *Client) currentKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

func (c *Client) api(ctx context.Context) (*backend, error) {
	c.mu.RLock()
	b, key := c.backend, c.apiKey
	c.mu.RUnlock()
	if b != nil {
		return b, nil
	}
	if key == "" {
		return nil, fmt.Errorf("%w: no Gemini API key configured", capability.ErrCredentialRequired)
	}

	cfg := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	sdk, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("genai: init client: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.apiKey != key {
		return nil, fmt.Errorf("genai: api key changed during initialisation")
	}
	c.backend = &backend{models: sdk.Models, operations: sdk.Operations}
	return c.backend, nil
}

const spellcheckPrompt = `You are a spell checker. Check the following text for spelling mistakes.
If there are mistakes, return ONLY the corrected text.
If there are no mistakes, return exactly "NO_CHANGE".
Do not add any markdown, quotes, or explanations.
Text: "%s"`

const noChangeSentinel = "NO_CHANGE"

func (c *Client) Spellcheck(ctx context.Context, text string) (capability.SpellcheckResult, error) {
	b, err := c.api(ctx)
	if err != nil {
		return capability.SpellcheckResult{}, err
	}
	resp, err := b.models.GenerateContent(ctx, c.models.Spellcheck, genai.Text(fmt.Sprintf(spellcheckPrompt, text)), nil)
	if err != nil {
		return capability.SpellcheckResult{}, fmt.Errorf("genai: spellcheck: %w", classify(err))
	}
	corrected := strings.TrimSpace(resp.Text())
	if corrected == "" || corrected == noChangeSentinel {
		return capability.SpellcheckResult{CorrectedText: text, NoChange: true}, nil
	}
	return capability.SpellcheckResult{CorrectedText: corrected}, nil
}

func (c *Client) CreateImage(ctx context.Context, prompt string, aspect domain.AspectRatio) ([]capability.Artifact, error) {
	b, err := c.api(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := b.models.GenerateImages(ctx, c.models.Image, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/jpeg",
		AspectRatio:    string(aspect),
	})
	if err != nil {
		return nil, fmt.Errorf("genai: generate image: %w", classify(err))
	}

	var out []capability.Artifact
	for _, img := range resp.GeneratedImages {
		if img == nil || img.Image == nil || len(img.Image.ImageBytes) == 0 {
			continue
		}
		out = append(out, capability.Artifact{Data: img.Image.ImageBytes, MIMEType: "image/jpeg"})
	}
	c.logger.Debug().Str("model", c.models.Image).Int("images", len(out)).Msg("genai: generated images")
	return out, nil
}

func (c *Client) EditImage(ctx context.Context, source domain.Media, prompt string) ([]capability.Artifact, error) {
	b, err := c.api(ctx)
	if err != nil {
		return nil, err
	}
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{Data: source.Data, MIMEType: source.MIMEType}},
			{Text: prompt},
		},
	}}
	resp, err := b.models.GenerateContent(ctx, c.models.Edit, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage)},
	})
	if err != nil {
		return nil, fmt.Errorf("genai: edit image: %w", classify(err))
	}

	var out []capability.Artifact
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			out = append(out, capability.Artifact{Data: part.InlineData.Data, MIMEType: "image/png"})
		}
	}
	c.logger.Debug().Str("model", c.models.Edit).Int("images", len(out)).Msg("genai: edited image")
	return out, nil
}

func (c *Client) CreateVideoJob(ctx context.Context, prompt string, aspect domain.AspectRatio, source *domain.Media) (capability.JobHandle, error) {
	b, err := c.api(ctx)
	if err != nil {
		return capability.JobHandle{}, err
	}
	var image *genai.Image
	if !source.IsZero() {
		image = &genai.Image{ImageBytes: source.Data, MIMEType: source.MIMEType}
	}
	op, err := b.models.GenerateVideos(ctx, c.models.Video, prompt, image, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     c.resolution,
		AspectRatio:    string(aspect),
	})
	if err != nil {
		return capability.JobHandle{}, fmt.Errorf("genai: create video job: %w", classify(err))
	}
	if op == nil || op.Name == "" {
		return capability.JobHandle{}, errors.New("genai: create video job: provider returned no operation")
	}
	c.logger.Debug().Str("model", c.models.Video).Str("operation", op.Name).Msg("genai: video job created")
	return capability.JobHandle{ID: op.Name}, nil
}

func (c *Client) PollVideoJob(ctx context.Context, job capability.JobHandle) (capability.JobStatus, error) {
	b, err := c.api(ctx)
	if err != nil {
		return capability.JobStatus{}, err
	}
	op, err := b.operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: job.ID}, nil)
	if err != nil {
		return capability.JobStatus{}, fmt.Errorf("genai: poll video job: %w", classify(err))
	}
	if op == nil || !op.Done {
		return capability.JobStatus{}, nil
	}
	if len(op.Error) > 0 {
		return capability.JobStatus{}, fmt.Errorf("genai: video job failed: %w", classify(errors.New(operationMessage(op.Error))))
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return capability.JobStatus{Done: true}, nil
	}
	video := op.Response.GeneratedVideos[0].Video
	switch {
	case video == nil:
		return capability.JobStatus{Done: true}, nil
	case video.URI != "":
		return capability.JobStatus{Done: true, Locator: video.URI}, nil
	case len(video.VideoBytes) > 0:
		locator := "inline:" + job.ID
		mime := video.MIMEType
		if mime == "" {
			mime = "video/mp4"
		}
		c.inline.Store(locator, capability.Artifact{Data: video.VideoBytes, MIMEType: mime})
		return capability.JobStatus{Done: true, Locator: locator}, nil
	default:
		return capability.JobStatus{Done: true}, nil
	}
}

// FetchMedia downloads the finished video, authenticating with the API key.
func (c *Client) FetchMedia(ctx context.Context, locator string) (capability.Artifact, error) {
	if v, ok := c.inline.LoadAndDelete(locator); ok {
		return v.(capability.Artifact), nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return capability.Artifact{}, fmt.Errorf("genai: create download request: %w", err)
	}
	if key := c.currentKey(); key != "" {
		q := req.URL.Query()
		q.Set("key", key)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return capability.Artifact{}, fmt.Errorf("genai: download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("download media status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			err = fmt.Errorf("%w: %v", capability.ErrCredentialRequired, err)
		}
		return capability.Artifact{}, fmt.Errorf("genai: %w", err)
	}
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return capability.Artifact{}, fmt.Errorf("genai: read media: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" || strings.HasPrefix(mime, "application/octet-stream") {
		mime = "video/mp4"
	}
	return capability.Artifact{Data: blob, MIMEType: mime}, nil
}

func (c *Client) StreamChat(ctx context.Context, transcript []capability.Turn, input capability.TurnInput, tier capability.TierConfig) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		b, err := c.api(ctx)
		if err != nil {
			yield("", err)
			return
		}

		model := c.models.ChatFast
		var cfg *genai.GenerateContentConfig
		if tier.Tier == domain.TierSmart || tier.Thinking || !input.Attachment.IsZero() {
			model = c.models.ChatSmart
			if tier.Thinking {
				cfg = &genai.GenerateContentConfig{
					ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(c.thinkingBudget)},
				}
			}
		}

		c.logger.Debug().Str("model", model).Int("turns", len(transcript)).Bool("thinking", tier.Thinking).Msg("genai: streaming chat")
		for resp, err := range b.models.GenerateContentStream(ctx, model, chatContents(transcript, input), cfg) {
			if err != nil {
				yield("", fmt.Errorf("genai: stream chat: %w", classify(err)))
				return
			}
			if resp == nil {
				continue
			}
			if text := resp.Text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

func chatContents(transcript []capability.Turn, input capability.TurnInput) []*genai.Content {
	contents := make([]*genai.Content, 0, len(transcript)+1)
	for _, turn := range transcript {
		if turn.Text == "" {
			continue
		}
		role := genai.RoleUser
		if turn.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: turn.Text}}})
	}

	var parts []*genai.Part
	if !input.Attachment.IsZero() {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: input.Attachment.Data, MIMEType: input.Attachment.MIMEType}})
	}
	parts = append(parts, &genai.Part{Text: input.Text})
	return append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
}

var credentialMarkers = []string{
	"Requested entity was not found",
	"API key not valid",
	"API_KEY_INVALID",
	"PERMISSION_DENIED",
	"UNAUTHENTICATED",
}

// classify marks entitlement failures with capability.ErrCredentialRequired.
func classify(err error) error {
	if err == nil || errors.Is(err, capability.ErrCredentialRequired) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
		return fmt.Errorf("%w: %v", capability.ErrCredentialRequired, err)
	}
	msg := err.Error()
	for _, marker := range credentialMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", capability.ErrCredentialRequired, err)
		}
	}
	return err
}

func operationMessage(opErr map[string]any) string {
	if msg, ok := opErr["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("%v", opErr)
}

var _ capability.Client = (*Client)(nil)

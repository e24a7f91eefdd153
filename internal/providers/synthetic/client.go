// Package synthetic provides a deterministic offline capability client. It is
// used when no provider credential is configured and in local development.
package synthetic

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"vaultx/internal/capability"
	"vaultx/internal/domain"
	"vaultx/internal/infra"
)

const locatorPrefix = "synthetic://video/"

var typos = map[string]string{
	"teh":     "the",
	"waht":    "what",
	"wether":  "weather",
	"recieve": "receive",
	"helo":    "hello",
	"becuase": "because",
	"catt":    "cat",
	"dgo":     "dog",
	"sunst":   "sunset",
	"moutain": "mountain",
}

type Options struct {
	// PollsUntilDone is how many status checks a video job takes to finish.
	PollsUntilDone int
	// FragmentDelay spaces out chat fragments to mimic streaming.
	FragmentDelay time.Duration
	Logger        *infra.Logger
}

type videoJob struct {
	prompt string
	polls  int
}

// Client renders placeholder artwork and echoes chat input.
type Client struct {
	pollsUntilDone int
	fragmentDelay  time.Duration
	logger         *infra.Logger

	mu   sync.Mutex
	jobs map[string]*videoJob
}

func NewClient(opts Options) *Client {
	polls := opts.PollsUntilDone
	if polls <= 0 {
		polls = 2
	}
	return &Client{
		pollsUntilDone: polls,
		fragmentDelay:  opts.FragmentDelay,
		logger:         infra.LoggerOrDiscard(opts.Logger),
		jobs:           make(map[string]*videoJob),
	}
}

func (c *Client) Spellcheck(ctx context.Context, text string) (capability.SpellcheckResult, error) {
	if err := ctx.Err(); err != nil {
		return capability.SpellcheckResult{}, err
	}
	words := strings.Fields(text)
	changed := false
	for i, w := range words {
		if fix, ok := typos[strings.ToLower(w)]; ok {
			words[i] = fix
			changed = true
		}
	}
	if !changed {
		return capability.SpellcheckResult{CorrectedText: text, NoChange: true}, nil
	}
	return capability.SpellcheckResult{CorrectedText: strings.Join(words, " ")}, nil
}

func (c *Client) CreateImage(ctx context.Context, prompt string, aspect domain.AspectRatio) ([]capability.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	width, height := frameSize(aspect)
	seed := deterministicSeed("image", prompt, aspect)
	c.logger.Debug().Str("seed", seed).Int("width", width).Int("height", height).Msg("synthetic: rendered image")
	return []capability.Artifact{{Data: renderImage(width, height, seed), MIMEType: "image/png"}}, nil
}

func (c *Client) EditImage(ctx context.Context, source domain.Media, prompt string) ([]capability.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := deterministicSeed("edit", prompt, len(source.Data), source.MIMEType)
	return []capability.Artifact{{Data: renderImage(baseEdge, baseEdge, seed), MIMEType: "image/png"}}, nil
}

func (c *Client) CreateVideoJob(ctx context.Context, prompt string, aspect domain.AspectRatio, source *domain.Media) (capability.JobHandle, error) {
	if err := ctx.Err(); err != nil {
		return capability.JobHandle{}, err
	}
	sourceLen := 0
	if !source.IsZero() {
		sourceLen = len(source.Data)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := "operations/" + deterministicSeed("video", prompt, aspect, sourceLen, len(c.jobs))
	c.jobs[id] = &videoJob{prompt: prompt}
	return capability.JobHandle{ID: id}, nil
}

func (c *Client) PollVideoJob(ctx context.Context, job capability.JobHandle) (capability.JobStatus, error) {
	if err := ctx.Err(); err != nil {
		return capability.JobStatus{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[job.ID]
	if !ok {
		return capability.JobStatus{}, fmt.Errorf("synthetic: unknown job %q", job.ID)
	}
	j.polls++
	if j.polls < c.pollsUntilDone {
		return capability.JobStatus{}, nil
	}
	return capability.JobStatus{Done: true, Locator: locatorPrefix + strings.TrimPrefix(job.ID, "operations/")}, nil
}

func (c *Client) FetchMedia(ctx context.Context, locator string) (capability.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return capability.Artifact{}, err
	}
	seed, ok := strings.CutPrefix(locator, locatorPrefix)
	if !ok {
		return capability.Artifact{}, fmt.Errorf("synthetic: unsupported locator %q", locator)
	}
	c.mu.Lock()
	j, ok := c.jobs["operations/"+seed]
	if ok {
		delete(c.jobs, "operations/"+seed)
	}
	c.mu.Unlock()
	if !ok {
		return capability.Artifact{}, fmt.Errorf("synthetic: media %q expired", locator)
	}
	return capability.Artifact{Data: renderVideo(seed, j.prompt), MIMEType: "video/mp4"}, nil
}

// StreamChat replies word by word.
func (c *Client) StreamChat(ctx context.Context, transcript []capability.Turn, input capability.TurnInput, tier capability.TierConfig) iter.Seq2[string, error] {
	reply := "You said: " + strings.TrimSpace(input.Text)
	if !input.Attachment.IsZero() {
		reply += fmt.Sprintf(" (with a %s attachment)", input.Attachment.Kind())
	}
	if tier.Thinking {
		reply = "After some thought. " + reply
	}
	words := strings.Fields(reply)

	return func(yield func(string, error) bool) {
		for i, w := range words {
			if i > 0 {
				w = " " + w
			}
			if c.fragmentDelay > 0 {
				t := time.NewTimer(c.fragmentDelay)
				select {
				case <-ctx.Done():
					t.Stop()
					yield("", ctx.Err())
					return
				case <-t.C:
				}
			} else if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(w, nil) {
				return
			}
		}
	}
}

var _ capability.Client = (*Client)(nil)

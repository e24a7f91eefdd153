package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"vaultx/internal/bootstrap"
	"vaultx/internal/domain"
	"vaultx/internal/media"
	"vaultx/internal/orchestrator"
)

var (
	genStyle  string
	genAspect string
	genSource string
	genOut    string
)

// imageCmd creates an image from a prompt
var imageCmd = &cobra.Command{
	Use:   "image <prompt>",
	Short: "Create an image from a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerateCommand(cmd, domain.SurfaceImage, orchestrator.GenerationInput{
			Kind:        domain.KindImageCreate,
			Prompt:      args[0],
			StyleID:     genStyle,
			AspectRatio: genAspect,
		})
	},
}

// editCmd edits an existing image
var editCmd = &cobra.Command{
	Use:   "edit <prompt>",
	Short: "Edit an image file with a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if genSource == "" {
			return errors.New("--source is required")
		}
		return runGenerateCommand(cmd, domain.SurfaceImage, orchestrator.GenerationInput{
			Kind:   domain.KindImageEdit,
			Prompt: args[0],
		})
	},
}

// videoCmd creates a video, optionally from a starting image
var videoCmd = &cobra.Command{
	Use:   "video <prompt>",
	Short: "Create a video from a prompt (Ctrl-C cancels)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerateCommand(cmd, domain.SurfaceVideo, orchestrator.GenerationInput{
			Kind:        domain.KindVideoCreate,
			Prompt:      args[0],
			AspectRatio: genAspect,
		})
	},
}

func init() {
	imageCmd.Flags().StringVar(&genStyle, "style", "", "Art style id (see GET /v1/styles)")
	imageCmd.Flags().StringVar(&genAspect, "aspect", "", "Aspect ratio: 1:1, 16:9, 9:16, 3:4 or 4:3")
	imageCmd.Flags().StringVarP(&genOut, "out", "o", "", "Write the image to this file")

	editCmd.Flags().StringVar(&genSource, "source", "", "Image file to edit")
	editCmd.Flags().StringVarP(&genOut, "out", "o", "", "Write the edited image to this file")

	videoCmd.Flags().StringVar(&genAspect, "aspect", "", "Aspect ratio: 16:9 or 9:16")
	videoCmd.Flags().StringVar(&genSource, "source", "", "Optional starting image")
	videoCmd.Flags().StringVarP(&genOut, "out", "o", "", "Write the video to this file")
}

func runGenerateCommand(cmd *cobra.Command, surface domain.Surface, in orchestrator.GenerationInput) error {
	ctx := cmd.Context()
	if genSource != "" {
		src, err := readMediaFile(genSource)
		if err != nil {
			return err
		}
		in.SourceMedia = &src
	}

	c, err := openContainer(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	term := newTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
	result, err := generate(ctx, c.Orchestrator, surface, in, term)
	if err != nil {
		return err
	}

	fmt.Fprintf(term.out, "Done: %s (%s, %s)\n", result.DisplayPrompt, result.MediaKind, result.AspectRatio)
	if genOut == "" {
		fmt.Fprintln(term.out, "Saved to history as", result.ID)
		return nil
	}
	if err := saveResult(ctx, c, result, genOut); err != nil {
		return err
	}
	fmt.Fprintln(term.out, "Wrote", genOut)
	return nil
}

// generate submits one request and drives it to a terminal phase, asking the
// user about spelling corrections along the way.
func generate(ctx context.Context, o *orchestrator.Orchestrator, surface domain.Surface, in orchestrator.GenerationInput, term *terminal) (domain.GenerationResult, error) {
	var mu sync.Mutex
	last := domain.PhaseIdle
	unsubscribe := o.Subscribe(func(e orchestrator.Event) {
		if e.Type != orchestrator.EventState || e.Surface != surface || e.State == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if e.State.Phase == last {
			return
		}
		last = e.State.Phase
		switch last {
		case domain.PhaseCheckingSpelling:
			fmt.Fprintln(term.out, "Checking spelling...")
		case domain.PhaseDispatching:
			fmt.Fprintln(term.out, "Generating...")
		case domain.PhasePolling:
			fmt.Fprintln(term.out, "Waiting for the video to render...")
		}
	})
	defer unsubscribe()

	if err := o.Submit(ctx, surface, in); err != nil {
		return domain.GenerationResult{}, err
	}
	for {
		st, err := o.State(surface)
		if err != nil {
			return domain.GenerationResult{}, err
		}
		switch st.Phase {
		case domain.PhaseAwaitingUserCorrectionDecision:
			if err := o.ResolveSuggestion(ctx, surface, term.askSuggestion(st.Suggestion)); err != nil {
				return domain.GenerationResult{}, err
			}
		case domain.PhaseSucceeded:
			if st.LastResult == nil {
				return domain.GenerationResult{}, errors.New("generation finished without a result")
			}
			return *st.LastResult, nil
		case domain.PhaseFailed:
			if st.LastError == nil {
				return domain.GenerationResult{}, errors.New("generation failed")
			}
			return domain.GenerationResult{}, domain.NewError(st.LastError.Kind, st.LastError.Message, nil)
		default:
			return domain.GenerationResult{}, fmt.Errorf("generation stopped in phase %s", st.Phase)
		}
	}
}

func readMediaFile(path string) (domain.Media, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Media{}, fmt.Errorf("read source: %w", err)
	}
	if len(data) == 0 {
		return domain.Media{}, fmt.Errorf("read source: %s is empty", path)
	}
	return domain.Media{MIMEType: http.DetectContentType(data), Data: data}, nil
}

// saveResult writes the media behind a finished result to path.
func saveResult(ctx context.Context, c *bootstrap.Container, r domain.GenerationResult, path string) error {
	m, err := media.Load(ctx, c.Media, r.MediaURL)
	if err != nil {
		return fmt.Errorf("load result: %w", err)
	}
	return os.WriteFile(path, m.Data, 0o644)
}

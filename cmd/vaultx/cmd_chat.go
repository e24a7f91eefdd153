package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"vaultx/internal/chat"
	"vaultx/internal/domain"
)

const chatHelp = `Commands:
  /fast           use the fast model
  /smart          use the smart model
  /think          toggle thinking mode
  /attach <file>  attach an image or video to the next message
  /quit           leave the chat`

// chatCmd starts an interactive conversation
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Long:  "Start an interactive chat with streamed replies.\n\n" + chatHelp,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openContainer(ctx, cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return runChat(ctx, c.Orchestrator.Chat(), newTerminal(cmd.InOrStdin(), cmd.OutOrStdout()))
	},
}

// runChat reads lines until EOF, /quit or cancellation. Replies are printed
// fragment by fragment as they stream in.
func runChat(ctx context.Context, session *chat.Session, term *terminal) error {
	unsubscribe := session.Subscribe(func(e chat.Event) {
		switch e.Kind {
		case chat.EventFragment:
			fmt.Fprint(term.out, e.Fragment)
		case chat.EventMessageFinalized:
			if e.Message.Role == domain.RoleAssistant {
				fmt.Fprintln(term.out)
			}
		case chat.EventMessageAppended:
			// Notices arrive already finalised.
			if e.Message.Role == domain.RoleAssistant && e.Message.Finalized {
				fmt.Fprintln(term.out, e.Message.Text)
			}
		}
	})
	defer unsubscribe()

	fmt.Fprintln(term.out, "Type a message, /help for commands.")
	var attachment *domain.Media
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprintf(term.out, "%s> ", promptLabel(session.State().Config))
		line, err := term.readLine()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(term.out)
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "/") {
			done, err := chatCommand(session, term, line, &attachment)
			if err != nil {
				fmt.Fprintln(term.out, "error:", err)
			}
			if done {
				return nil
			}
			continue
		}
		if line == "" && attachment == nil {
			continue
		}

		if err := session.Send(ctx, line, attachment); err != nil {
			fmt.Fprintln(term.out, "error:", err)
			continue
		}
		attachment = nil
		if st := session.State(); st.Suggestion != nil {
			if err := session.ResolveSuggestion(ctx, term.askSuggestion(st.Suggestion)); err != nil {
				fmt.Fprintln(term.out, "error:", err)
			}
		}
	}
}

func chatCommand(session *chat.Session, term *terminal, line string, attachment **domain.Media) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(term.out, chatHelp)
	case "/fast":
		session.SelectModelTier(domain.TierFast)
	case "/smart":
		session.SelectModelTier(domain.TierSmart)
	case "/think":
		session.SetThinkingMode(!session.State().Config.Thinking)
	case "/attach":
		path := strings.TrimSpace(arg)
		if path == "" {
			return false, errors.New("usage: /attach <file>")
		}
		m, err := readMediaFile(path)
		if err != nil {
			return false, err
		}
		*attachment = &m
		fmt.Fprintf(term.out, "Attached %s (%s)\n", path, m.Kind())
	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
	return false, nil
}

func promptLabel(cfg chat.Config) string {
	label := string(cfg.Tier)
	if cfg.Thinking {
		label += "+think"
	}
	return label
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"assistchat/internal/models"
	"assistchat/internal/service/agent"
	"assistchat/internal/service/conversation"
)

var (
	chatWrap int

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true)
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true)
	citationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant in the terminal",
	Long: `Start an interactive conversation with the configured assistant.

Commands:
  /reset   start a new conversation
  /quit    exit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().IntVar(&chatWrap, "wrap", 100, "word wrap width for replies")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, err := newConversationService(ctx, cfg)
	if err != nil {
		return err
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(chatWrap),
	)
	if err != nil {
		return fmt.Errorf("init renderer: %w", err)
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	out := cmd.OutOrStdout()
	sess := &models.Session{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	def := svc.Agent()
	fmt.Fprintf(out, "Connected to %s (%s). Type /reset for a new conversation, /quit to exit.\n\n", def.Name, def.Model)

	for {
		input, err := line.Prompt("you> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		input = strings.TrimSpace(input)
		switch input {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if err := svc.Reset(ctx, sess); err != nil {
				fmt.Fprintln(out, noticeStyle.Render(conversation.Notice(err)))
				continue
			}
			fmt.Fprintln(out, statusStyle.Render("Started a new conversation."))
			continue
		}
		line.AppendHistory(input)

		res, err := svc.Send(ctx, sess, input, func(s agent.RunStatus) {
			fmt.Fprintf(os.Stderr, "\r%s", statusStyle.Render(fmt.Sprintf("assistant is %-14s", strings.ReplaceAll(string(s), "_", " "))))
		})
		fmt.Fprint(os.Stderr, "\r\033[K")
		if err != nil {
			fmt.Fprintln(out, noticeStyle.Render(conversation.Notice(err)))
			continue
		}
		rendered, rerr := renderer.Render(res.Assistant.Content)
		if rerr != nil {
			rendered = res.Assistant.Content + "\n"
		}
		fmt.Fprint(out, rendered)
		if len(res.Assistant.Citations) > 0 {
			ids := make([]string, 0, len(res.Assistant.Citations))
			for _, c := range res.Assistant.Citations {
				ids = append(ids, c.DocumentID)
			}
			fmt.Fprintln(out, citationStyle.Render("Sources: "+strings.Join(ids, ", ")))
		}
		fmt.Fprintln(out)
	}
}

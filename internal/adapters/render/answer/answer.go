package answer

import (
	"fmt"
	"strings"

	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const (
	DefaultWidth = 100
	// HistoryTurns is how many recent turns the history listing shows.
	HistoryTurns = 10
	// HistoryPreview is the rune limit for each side of a listed turn.
	HistoryPreview = 100
)

type Options struct {
	Width int
	// Style is a glamour standard style name; empty selects the terminal's.
	Style string
	// Plain skips markdown rendering entirely.
	Plain bool
}

// Renderer turns assistant answers into terminal output.
type Renderer struct {
	opts     Options
	markdown *glamour.TermRenderer
	meta     lipgloss.Style
	user     lipgloss.Style
	bot      lipgloss.Style
}

func NewRenderer(opts Options) (*Renderer, error) {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}

	r := &Renderer{
		opts: opts,
		meta: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		user: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		bot:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	}
	if opts.Plain {
		return r, nil
	}

	style := glamour.WithAutoStyle()
	if opts.Style != "" {
		style = glamour.WithStandardStyle(opts.Style)
	}

	markdown, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(opts.Width))
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	r.markdown = markdown

	return r, nil
}

// Answer renders text and a one-line footer naming the backend.
func (r *Renderer) Answer(text, backend string) string {
	body := r.Markdown(text)
	if backend == "" {
		return body
	}

	return body + "\n" + r.meta.Render("via "+backend)
}

// Markdown renders text, falling back to the raw text if glamour fails.
func (r *Renderer) Markdown(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if r.markdown == nil {
		return strings.TrimRight(text, "\n")
	}

	rendered, err := r.markdown.Render(text)
	if err != nil {
		return strings.TrimRight(text, "\n")
	}

	return strings.TrimRight(rendered, "\n")
}

// History lists the last HistoryTurns turns, oldest first.
func (r *Renderer) History(turns []domain.ConversationTurn) string {
	if len(turns) == 0 {
		return r.meta.Render("No conversation history yet.")
	}

	if len(turns) > HistoryTurns {
		turns = turns[len(turns)-HistoryTurns:]
	}

	lines := make([]string, 0, len(turns)*2)
	for i, turn := range turns {
		stamp := turn.Timestamp.Format("15:04:05")
		lines = append(lines,
			r.user.Render(fmt.Sprintf("%d. [%s] You: %s", i+1, stamp, domain.Truncate(turn.User, HistoryPreview))),
			r.bot.Render(fmt.Sprintf("   Bot: %s", domain.Truncate(turn.Bot, HistoryPreview))),
		)
	}

	return strings.Join(lines, "\n")
}

package utils

import (
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const maxReadableWidth = 100

// RenderMarkdown renders markdown for the terminal, wrapped at the terminal
// width (80 columns when unknown, at most 100). The text is returned as is
// when stdout is not a terminal or rendering fails.
func RenderMarkdown(markdown string) string {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return markdown
	}
	width := 80
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		width = w
	}
	return renderMarkdown(markdown, width, glamour.WithAutoStyle())
}

func renderMarkdown(markdown string, width int, style glamour.TermRendererOption) string {
	renderer, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(min(width, maxReadableWidth)),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}

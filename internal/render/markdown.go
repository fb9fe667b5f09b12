package render

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// Renderer turns an answer into displayable text. Implementations receive
// the answer exactly as the service returned it.
type Renderer interface {
	Render(text string) (string, error)
}

// Plain shows text as is.
type Plain struct{}

func (Plain) Render(text string) (string, error) { return text, nil }

// Markdown formats answers for the terminal.
type Markdown struct {
	tr *glamour.TermRenderer
}

// NewMarkdown creates a markdown renderer wrapping at width columns. With
// colored false it uses the plain "notty" style.
func NewMarkdown(width int, colored bool) (*Markdown, error) {
	if width <= 0 {
		width = 80
	}
	style := glamour.WithAutoStyle()
	if !colored {
		style = glamour.WithStandardStyle("notty")
	}
	tr, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("creating markdown renderer: %w", err)
	}
	return &Markdown{tr: tr}, nil
}

func (m *Markdown) Render(text string) (string, error) {
	return m.tr.Render(text)
}

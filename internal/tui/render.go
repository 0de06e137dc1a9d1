package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xxxsen/docfinder/internal/model"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	queryStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerStyle   = lipgloss.NewStyle().PaddingLeft(2)
	sourceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	snippetLength = 80
)

// RenderAnswer formats one query round: the response followed by the chunks it was grounded on.
func RenderAnswer(query string, pc *model.PromptContext, answer string) string {
	var sb strings.Builder
	sb.WriteString(queryStyle.Render("Query: " + query))
	sb.WriteString("\n")
	sb.WriteString(titleStyle.Render("Response:"))
	sb.WriteString("\n")
	sb.WriteString(answerStyle.Render(strings.TrimSpace(answer)))
	sb.WriteString("\n")
	sb.WriteString(RenderSources(pc))
	return sb.String()
}

// RenderSources lists the retrieved chunks, marking the ones cut from the prompt.
func RenderSources(pc *model.PromptContext) string {
	if pc == nil || len(pc.Hits) == 0 {
		return sourceStyle.Render("Retrieved: none")
	}
	kept := len(pc.Hits) - pc.Dropped
	lines := make([]string, 0, len(pc.Hits)+1)
	lines = append(lines, titleStyle.Render("Retrieved:"))
	for i, hit := range pc.Hits {
		line := fmt.Sprintf("%d. %s  score=%.3f  %s", i+1, hit.Chunk.ID, hit.Score, snippet(hit.Chunk.Text))
		if i >= kept {
			line += "  (not in prompt)"
		}
		lines = append(lines, sourceStyle.Render(line))
	}
	return strings.Join(lines, "\n")
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength]) + "..."
}

func renderError(err error) string {
	return errorStyle.Render("Error: " + err.Error())
}

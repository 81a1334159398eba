package services

import (
	"fmt"
	"strings"

	"chatrelay/models"
)

// DefaultContextWindow is the number of recent turns fed back into generation.
const DefaultContextWindow = 25

// BuildContext renders the window as "role: content" lines followed by the
// instruction to answer prompt. Only plain Content is used, never HTML.
func BuildContext(window []models.Turn, prompt string) string {
	var b strings.Builder

	for _, turn := range window {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}

	b.WriteString("Respond to this prompt: ")
	b.WriteString(prompt)
	b.WriteString("\nRespond with markdown formatting")
	b.WriteString("\nMake sure there is no extra space around any code snippets")

	return b.String()
}

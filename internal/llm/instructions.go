package llm

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed persona.md
var defaultPersona string

// DefaultPersona is the built-in instruction text.
func DefaultPersona() string {
	return strings.TrimSpace(defaultPersona)
}

// HomePage is the page that adds no situational framing.
const HomePage = "home"

// BuildInstructions appends the situational context of a turn to the
// persona. Page and quoted selection go into the instructions rather than
// the user input so the model treats them as framing, not as user claims.
func BuildInstructions(persona, page, quoted string) string {
	var parts []string
	if page = strings.TrimSpace(page); page != "" && page != HomePage {
		parts = append(parts, fmt.Sprintf("The user is currently viewing the %q page of the portfolio.", page))
	}
	if quoted = strings.TrimSpace(quoted); quoted != "" {
		parts = append(parts, fmt.Sprintf("The user has selected the following text from the page: \"%s\"", quoted))
	}
	if len(parts) == 0 {
		return persona
	}
	return persona + "\n\n" + strings.Join(parts, "\n")
}

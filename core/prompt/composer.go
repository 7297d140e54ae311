package prompt

import (
	"strings"

	"github.com/azzcolabs/concierge/core/persona"
)

// Markers delimiting the composed prompt. UserMessageMarker also splits
// the system-instruction portion from the rest for providers that accept
// a separate system role.
const (
	contextHeader     = "CONTEXTE SPÉCIFIQUE:"
	examplesHeader    = "EXEMPLES DE RÉPONSES:"
	UserMessageMarker = "MESSAGE UTILISATEUR:"
	closingDirective  = "RÉPONSE (en français, style professionnel et amical):"
)

// Prompt is the composed payload. Full is the single instruction blob;
// System is everything before the user-message marker.
type Prompt struct {
	System string
	Full   string
}

// Composer assembles prompts from a persona table and a template
// library. It performs no I/O and holds no mutable state.
type Composer struct {
	profiles *persona.Table
	library  *Library
}

// NewComposer builds a composer over validated tables.
func NewComposer(profiles *persona.Table, library *Library) (*Composer, error) {
	if err := profiles.Validate(); err != nil {
		return nil, err
	}
	return &Composer{profiles: profiles, library: library}, nil
}

// Compose builds the final instruction payload: persona system prompt,
// then the instruction/example blocks of every matched topic template in
// library order, then the user message and the closing directive. When
// no tag matches a template the general template is injected instead.
func (c *Composer) Compose(topicTags []string, id persona.ID, userMessage string) Prompt {
	requested := make(map[string]bool, len(topicTags))
	for _, tag := range topicTags {
		requested[tag] = true
	}

	var b strings.Builder
	b.WriteString(c.profiles.Profile(id).SystemPrompt)
	b.WriteString("\n\n")

	matched := 0
	for _, tpl := range c.library.Templates() {
		if !requested[tpl.Tag] {
			continue
		}
		matched++
		writeTemplate(&b, tpl)
	}
	if matched == 0 {
		writeTemplate(&b, c.library.General())
	}

	system := b.String()

	b.WriteString(UserMessageMarker)
	b.WriteString(" ")
	b.WriteString(userMessage)
	b.WriteString("\n\n")
	b.WriteString(closingDirective)

	return Prompt{System: system, Full: b.String()}
}

func writeTemplate(b *strings.Builder, tpl Template) {
	if tpl.Instructions != "" {
		b.WriteString(contextHeader)
		b.WriteString("\n")
		b.WriteString(tpl.Instructions)
		b.WriteString("\n\n")
	}
	if len(tpl.Examples) > 0 {
		b.WriteString(examplesHeader)
		b.WriteString("\n")
		for _, ex := range tpl.Examples {
			b.WriteString("Q: ")
			b.WriteString(ex.Question)
			b.WriteString("\n")
			b.WriteString("R: ")
			b.WriteString(ex.Answer)
			b.WriteString("\n\n")
		}
	}
}

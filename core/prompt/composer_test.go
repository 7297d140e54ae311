package prompt

import (
	"strings"
	"testing"

	"github.com/azzcolabs/concierge/core/persona"
)

func newTestComposer(t *testing.T) *Composer {
	t.Helper()
	c, err := NewComposer(persona.DefaultTable(), DefaultLibrary())
	if err != nil {
		t.Fatalf("NewComposer: %v", err)
	}
	return c
}

func TestComposeIncludesPersonaSystemPrompt(t *testing.T) {
	c := newTestComposer(t)

	p := c.Compose(nil, persona.Investor, "bonjour")

	want := persona.DefaultTable().Profile(persona.Investor).SystemPrompt
	if !strings.HasPrefix(p.Full, want) {
		t.Error("composed prompt does not start with persona system prompt")
	}
}

func TestComposeFallsBackToGeneralTemplate(t *testing.T) {
	c := newTestComposer(t)

	p := c.Compose(nil, persona.Professional, "Combien coûte votre service ?")

	general := DefaultLibrary().General()
	if !strings.Contains(p.Full, general.Instructions) {
		t.Error("general template instructions missing from composed prompt")
	}
	if !strings.Contains(p.Full, "Q: "+general.Examples[0].Question) {
		t.Error("general template example missing from composed prompt")
	}
}

func TestComposeMatchedTagsInLibraryOrder(t *testing.T) {
	c := newTestComposer(t)

	// Request in reverse library order; output must follow library order.
	p := c.Compose([]string{"contact", "jobboat"}, persona.Professional, "x")

	jb := strings.Index(p.Full, "JobBoat est notre plateforme")
	ct := strings.Index(p.Full, "formulaire de contact du site")
	if jb == -1 || ct == -1 {
		t.Fatal("matched templates missing from composed prompt")
	}
	if jb > ct {
		t.Error("templates not composed in library order")
	}

	general := DefaultLibrary().General()
	if strings.Contains(p.Full, general.Examples[0].Answer) {
		t.Error("general template injected despite matched tags")
	}
}

func TestComposeSystemExcludesUserMessage(t *testing.T) {
	c := newTestComposer(t)

	p := c.Compose([]string{"mission"}, persona.Curious, "Quelle est votre mission ?")

	if strings.Contains(p.System, UserMessageMarker) {
		t.Error("system portion contains the user-message marker")
	}
	if !strings.Contains(p.Full, UserMessageMarker+" Quelle est votre mission ?") {
		t.Error("full prompt missing the user message")
	}
	if !strings.HasPrefix(p.Full, p.System) {
		t.Error("full prompt does not extend the system portion")
	}
	if !strings.HasSuffix(p.Full, closingDirective) {
		t.Error("full prompt missing the closing directive")
	}
}

func TestComposeDeterministic(t *testing.T) {
	c := newTestComposer(t)

	first := c.Compose([]string{"jobboat", "ai"}, persona.Candidate, "JobBoat ?")
	for i := 0; i < 5; i++ {
		if got := c.Compose([]string{"jobboat", "ai"}, persona.Candidate, "JobBoat ?"); got != first {
			t.Fatal("Compose not deterministic")
		}
	}
}

func TestNewLibraryRequiresGeneral(t *testing.T) {
	if _, err := NewLibrary([]Template{{Tag: "contact"}}); err == nil {
		t.Error("library without general template should fail")
	}
	if _, err := NewLibrary([]Template{{Tag: GeneralTag}, {Tag: GeneralTag}}); err == nil {
		t.Error("duplicate template should fail")
	}
	if _, err := NewLibrary([]Template{{Tag: GeneralTag}, {Tag: ""}}); err == nil {
		t.Error("empty tag should fail")
	}
}

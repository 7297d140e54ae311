// Package prompt assembles provider-ready instruction payloads from
// static topic templates and persona profiles.
package prompt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GeneralTag is the template injected when no topic tag matched.
// A library without it is a startup-time configuration error.
const GeneralTag = "general"

// Example is one few-shot question/answer pair.
type Example struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

// Template carries the instruction block and examples for one topic tag.
type Template struct {
	Tag          string    `yaml:"tag"`
	Instructions string    `yaml:"instructions,omitempty"`
	Examples     []Example `yaml:"examples,omitempty"`
}

// Library is an ordered, immutable collection of templates. Composition
// iterates templates in declaration order so output is deterministic.
type Library struct {
	templates []Template
	byTag     map[string]int
}

// NewLibrary validates and indexes a template set. The general template
// must be present.
func NewLibrary(templates []Template) (*Library, error) {
	byTag := make(map[string]int, len(templates))
	for i, tpl := range templates {
		if tpl.Tag == "" {
			return nil, fmt.Errorf("prompt library: template %d has empty tag", i)
		}
		if _, ok := byTag[tpl.Tag]; ok {
			return nil, fmt.Errorf("prompt library: duplicate template %q", tpl.Tag)
		}
		byTag[tpl.Tag] = i
	}
	if _, ok := byTag[GeneralTag]; !ok {
		return nil, fmt.Errorf("prompt library: %q template missing", GeneralTag)
	}
	return &Library{templates: templates, byTag: byTag}, nil
}

// Get returns the template for a tag.
func (l *Library) Get(tag string) (Template, bool) {
	i, ok := l.byTag[tag]
	if !ok {
		return Template{}, false
	}
	return l.templates[i], true
}

// General returns the fallback template.
func (l *Library) General() Template {
	tpl, _ := l.Get(GeneralTag)
	return tpl
}

// Templates returns templates in declaration order.
func (l *Library) Templates() []Template {
	return l.templates
}

// LoadLibrary reads a template library from a YAML file.
func LoadLibrary(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompt library: %w", err)
	}
	var raw struct {
		Templates []Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("prompt library %s: %w", path, err)
	}
	return NewLibrary(raw.Templates)
}

// DefaultLibrary returns the built-in French templates used by the
// production site.
func DefaultLibrary() *Library {
	lib, err := NewLibrary([]Template{
		{
			Tag:          GeneralTag,
			Instructions: "Présente AZZ&CO LABS comme une entreprise d'innovation technologique basée à Paris, qui développe JobBoat (recherche d'emploi) et OutWings (sorties de groupe). Si tu ne connais pas la réponse, redirige vers le formulaire de contact. Ne fais jamais de promesses que tu ne peux pas tenir.",
			Examples: []Example{
				{
					Question: "Que fait AZZ&CO LABS ?",
					Answer:   "AZZ&CO LABS est une entreprise d'innovation technologique basée à Paris. Nous développons JobBoat, qui transforme la recherche d'emploi, et OutWings, qui simplifie l'organisation de sorties en groupe.",
				},
				{
					Question: "Quelle est l'histoire d'AZZ&CO LABS ?",
					Answer:   "AZZ&CO LABS a été fondée avec une vision claire : utiliser la technologie pour améliorer la vie des gens, pas pour les remplacer. Nous avons commencé par JobBoat, et nous travaillons maintenant sur OutWings.",
				},
			},
		},
		{
			Tag:          "jobboat",
			Instructions: "JobBoat est notre plateforme de recherche d'emploi assistée par IA. Mets en avant la simplicité du parcours candidat et l'accompagnement personnalisé.",
			Examples: []Example{
				{
					Question: "C'est quoi JobBoat ?",
					Answer:   "JobBoat est notre plateforme qui transforme la recherche d'emploi : elle centralise vos candidatures et vous accompagne à chaque étape grâce à l'intelligence artificielle.",
				},
			},
		},
		{
			Tag:          "outwings",
			Instructions: "OutWings est notre application d'organisation de sorties de groupe. Mets en avant la coordination simple et l'aspect social.",
			Examples: []Example{
				{
					Question: "C'est quoi OutWings ?",
					Answer:   "OutWings simplifie l'organisation de sorties en groupe : choix de la date, du lieu et coordination des participants, le tout au même endroit.",
				},
			},
		},
		{
			Tag:          "contact",
			Instructions: "Pour toute prise de contact, oriente vers le formulaire de contact du site. Nous répondons sous 24 à 48 heures, du lundi au vendredi de 9h à 18h (heure de Paris).",
			Examples: []Example{
				{
					Question: "Comment vous contacter ?",
					Answer:   "Le plus simple est de passer par le formulaire de contact du site. Nous répondons généralement sous 24 à 48 heures.",
				},
			},
		},
		{
			Tag:          "mission",
			Instructions: "Notre mission : une technologie éthique et centrée sur l'humain. Insiste sur le fait que nos produits assistent les gens sans les remplacer.",
		},
		{
			Tag:          "investment",
			Instructions: "Pour les questions d'investissement, présente la vision et le marché sans jamais promettre de rendement, et oriente vers une prise de contact directe.",
		},
	})
	if err != nil {
		// The built-in library always contains the general template.
		panic(err)
	}
	return lib
}

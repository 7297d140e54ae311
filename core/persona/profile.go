// Package persona maps free-text visitor messages to conversational
// posture profiles and coarse topic tags. Tables are loaded once at
// startup and are immutable afterwards.
package persona

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ID identifies a conversational posture profile.
type ID string

const (
	Professional ID = "professional"
	Investor     ID = "investor"
	Candidate    ID = "candidate"
	Partner      ID = "partner"
	Curious      ID = "curious"
)

// Default is selected whenever no keyword scores above zero.
const Default = Professional

// Profile pairs a persona with its trigger keywords and the base system
// instruction injected when the persona is active.
type Profile struct {
	ID           ID       `yaml:"id"`
	Keywords     []string `yaml:"keywords"`
	SystemPrompt string   `yaml:"system_prompt"`
}

// TagGroup maps a set of synonym substrings to one topic tag.
type TagGroup struct {
	Tag      string   `yaml:"tag"`
	Synonyms []string `yaml:"synonyms"`
}

// Table holds the full static configuration for detection. Profiles and
// tag groups are ordered slices: iteration order is the declaration
// order, which keeps tie breaking and tag output deterministic.
type Table struct {
	Profiles  []Profile  `yaml:"profiles"`
	TagGroups []TagGroup `yaml:"tag_groups"`
}

// Validate checks the table is usable for detection.
func (t *Table) Validate() error {
	if len(t.Profiles) == 0 {
		return fmt.Errorf("persona table: no profiles configured")
	}
	seen := make(map[ID]bool, len(t.Profiles))
	for _, p := range t.Profiles {
		if p.ID == "" {
			return fmt.Errorf("persona table: profile with empty id")
		}
		if seen[p.ID] {
			return fmt.Errorf("persona table: duplicate profile %q", p.ID)
		}
		seen[p.ID] = true
	}
	if !seen[Default] {
		return fmt.Errorf("persona table: default profile %q missing", Default)
	}
	return nil
}

// Profile returns the profile for id, falling back to the default
// profile for unregistered ids.
func (t *Table) Profile(id ID) Profile {
	for _, p := range t.Profiles {
		if p.ID == id {
			return p
		}
	}
	for _, p := range t.Profiles {
		if p.ID == Default {
			return p
		}
	}
	return Profile{}
}

// LoadTable reads a persona table from a YAML file and validates it.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona table: %w", err)
	}
	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("persona table %s: %w", path, err)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &table, nil
}

// DefaultTable returns the built-in French persona and topic tables used
// by the production site when no external configuration is supplied.
func DefaultTable() *Table {
	return &Table{
		Profiles: []Profile{
			{
				ID: Professional,
				Keywords: []string{
					"service", "entreprise", "solution", "projet",
					"produit", "offre", "client", "business",
				},
				SystemPrompt: "Tu es un assistant professionnel et amical représentant AZZ&CO LABS, une entreprise d'innovation technologique et d'intelligence artificielle basée à Paris. Tu aides les visiteurs à comprendre nos produits (JobBoat et OutWings) et notre approche. Réponds toujours en français, de manière concise et claire.",
			},
			{
				ID: Investor,
				Keywords: []string{
					"investissement", "investir", "finance", "capital",
					"rendement", "levée", "valorisation", "roi",
				},
				SystemPrompt: "Tu es un assistant représentant AZZ&CO LABS auprès d'investisseurs potentiels. Mets en avant la vision, le marché adressé et la traction de JobBoat et OutWings, sans jamais promettre de rendement. Réponds toujours en français, avec un ton sérieux et factuel.",
			},
			{
				ID: Candidate,
				Keywords: []string{
					"emploi", "carrière", "recrutement", "candidature",
					"poste", "cv", "stage", "alternance", "travail",
				},
				SystemPrompt: "Tu es un assistant représentant AZZ&CO LABS auprès de candidats. Présente notre culture d'équipe et nos opportunités, et oriente vers le formulaire de contact pour toute candidature. Réponds toujours en français, avec un ton chaleureux et encourageant.",
			},
			{
				ID: Partner,
				Keywords: []string{
					"partenariat", "partenaire", "collaboration",
					"intégration", "distribution", "alliance",
				},
				SystemPrompt: "Tu es un assistant représentant AZZ&CO LABS auprès de partenaires potentiels. Présente nos axes de collaboration autour de JobBoat et OutWings et oriente vers une prise de contact directe. Réponds toujours en français, de manière professionnelle.",
			},
			{
				ID: Curious,
				Keywords: []string{
					"curieux", "découvrir", "qui êtes-vous", "c'est quoi",
					"présentation", "histoire",
				},
				SystemPrompt: "Tu es un assistant représentant AZZ&CO LABS auprès de visiteurs curieux. Raconte simplement qui nous sommes et ce que font JobBoat et OutWings, sans jargon. Réponds toujours en français, avec un ton amical.",
			},
		},
		TagGroups: []TagGroup{
			{Tag: "jobboat", Synonyms: []string{"jobboat", "job boat", "emploi", "carrière", "travail"}},
			{Tag: "outwings", Synonyms: []string{"outwings", "out wings", "sortie", "groupe", "social"}},
			{Tag: "ai", Synonyms: []string{"ia", "ai", "intelligence artificielle", "artificial intelligence"}},
			{Tag: "investment", Synonyms: []string{"investissement", "investment", "finance", "capital"}},
			{Tag: "contact", Synonyms: []string{"contact", "email", "téléphone", "phone"}},
			{Tag: "mission", Synonyms: []string{"mission", "vision", "philosophie", "philosophy"}},
			{Tag: "technology", Synonyms: []string{"technologie", "technology", "tech", "innovation"}},
			{Tag: "team", Synonyms: []string{"équipe", "team"}},
			{Tag: "partnership", Synonyms: []string{"partenariat", "partnership", "collaboration"}},
			{Tag: "demo", Synonyms: []string{"démo", "demo", "screenshot", "capture"}},
		},
	}
}

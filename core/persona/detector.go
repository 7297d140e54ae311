package persona

import (
	"strings"
)

// Weights control how keyword hits and conversation continuity are
// scored. The production values (1.0 / 0.5) are configuration, not law.
type Weights struct {
	Keyword    float64 `yaml:"keyword"`
	Continuity float64 `yaml:"continuity"`
}

// DefaultWeights returns the production scoring weights.
func DefaultWeights() Weights {
	return Weights{Keyword: 1.0, Continuity: 0.5}
}

// Turn is one prior conversation exchange supplied by the caller, in
// chronological order. Persona is the id attributed to the turn when it
// was generated, empty for turns with no attribution.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Persona ID     `json:"persona,omitempty"`
}

const (
	// RoleUser and RoleAssistant are the two caller-visible turn roles.
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Detection is the outcome of one scoring pass. Confidence is the raw
// accumulated score of the winning persona, not a probability; zero
// means nothing matched and the default was forced.
type Detection struct {
	Persona    ID
	Confidence float64
	Scores     map[ID]float64
}

// Detector scores messages against an immutable table. It holds no
// mutable state: Detect and TopicTags are pure over their inputs.
type Detector struct {
	table   *Table
	weights Weights
}

// NewDetector builds a detector over a validated table. A zero-value
// Weights falls back to the defaults as a whole; any non-zero field
// means the caller chose the weights, and a zero in the other field is
// honored (for example continuity 0 disables the bonus).
func NewDetector(table *Table, weights Weights) (*Detector, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Detector{table: table, weights: weights}, nil
}

// Detect resolves the dominant persona for a message. Each keyword
// occurring as a case-insensitive substring adds the keyword weight;
// each prior turn already attributed to a persona adds the continuity
// weight. Ties keep the earliest profile in table order, and a maximum
// score of zero forces the default persona.
func (d *Detector) Detect(message string, history []Turn) Detection {
	lower := strings.ToLower(message)

	scores := make(map[ID]float64, len(d.table.Profiles))
	for _, p := range d.table.Profiles {
		scores[p.ID] = 0
	}

	for _, p := range d.table.Profiles {
		for _, kw := range p.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				scores[p.ID] += d.weights.Keyword
			}
		}
	}

	for _, turn := range history {
		if turn.Persona == "" {
			continue
		}
		if _, ok := scores[turn.Persona]; ok {
			scores[turn.Persona] += d.weights.Continuity
		}
	}

	best := Default
	var max float64
	for _, p := range d.table.Profiles {
		if scores[p.ID] > max {
			max = scores[p.ID]
			best = p.ID
		}
	}
	if max == 0 {
		best = Default
	}

	return Detection{Persona: best, Confidence: max, Scores: scores}
}

// TopicTags extracts topic tags from a message. Groups match
// independently: a message may yield several tags or none. Output order
// follows the tag group declaration order.
func (d *Detector) TopicTags(message string) []string {
	lower := strings.ToLower(message)

	var tags []string
	for _, g := range d.table.TagGroups {
		for _, syn := range g.Synonyms {
			if strings.Contains(lower, strings.ToLower(syn)) {
				tags = append(tags, g.Tag)
				break
			}
		}
	}
	return tags
}

// Profile resolves a persona id to its profile, defaulting for
// unregistered ids.
func (d *Detector) Profile(id ID) Profile {
	return d.table.Profile(id)
}

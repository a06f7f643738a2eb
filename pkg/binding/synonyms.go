package binding

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Group is one role and its candidate column names, in preference order.
type Group struct {
	Role       string
	Candidates []string
}

// Synonyms is an ordered role -> candidate-columns table. Group order matters
// for ResolveMany, which takes the first group that mentions a token.
type Synonyms struct {
	groups []Group
}

// DefaultSynonyms returns a fresh copy of the built-in table.
func DefaultSynonyms() Synonyms {
	return NewSynonyms(
		Group{Role: "gender", Candidates: []string{"sex", "gender", "sexo", "Attribute9"}},
		Group{Role: "age", Candidates: []string{"age", "age_group", "edad", "Attribute13"}},
		Group{Role: "race", Candidates: []string{"race", "ethnicity", "raza"}},
		Group{Role: "target", Candidates: []string{
			"target", "class", "label", "y", "true_label", "ground_truth", "approved", "default", "outcome",
		}},
		Group{Role: "prediction", Candidates: []string{
			"prediction", "pred", "y_pred", "predictions", "score", "proba", "output",
		}},
		Group{Role: "dimension", Candidates: []string{"sex", "gender", "age", "race", "Attribute9", "Attribute13"}},
	)
}

// NewSynonyms builds a table from groups. A repeated role replaces the earlier
// candidates but keeps its position.
func NewSynonyms(groups ...Group) Synonyms {
	var s Synonyms
	for _, g := range groups {
		s.Set(g.Role, g.Candidates...)
	}
	return s
}

// Set replaces the candidates of role, appending the role if it is new.
func (s *Synonyms) Set(role string, candidates ...string) {
	c := append([]string(nil), candidates...)
	for i := range s.groups {
		if s.groups[i].Role == role {
			s.groups[i].Candidates = c
			return
		}
	}
	s.groups = append(s.groups, Group{Role: role, Candidates: c})
}

// Candidates returns the candidates of role, or nil.
func (s Synonyms) Candidates(role string) []string {
	for _, g := range s.groups {
		if g.Role == role {
			return g.Candidates
		}
	}
	return nil
}

// Groups returns a copy of the table in order.
func (s Synonyms) Groups() []Group {
	out := make([]Group, len(s.groups))
	for i, g := range s.groups {
		out[i] = Group{Role: g.Role, Candidates: append([]string(nil), g.Candidates...)}
	}
	return out
}

// Len returns the number of roles.
func (s Synonyms) Len() int {
	return len(s.groups)
}

// Merge returns a new table where other's candidates are appended to existing
// roles (without duplicates) and unknown roles are added at the end.
func (s Synonyms) Merge(other Synonyms) Synonyms {
	merged := NewSynonyms(s.Groups()...)
	for _, g := range other.groups {
		existing := merged.Candidates(g.Role)
		seen := make(map[string]bool, len(existing))
		for _, c := range existing {
			seen[c] = true
		}
		combined := append([]string(nil), existing...)
		for _, c := range g.Candidates {
			if !seen[c] {
				seen[c] = true
				combined = append(combined, c)
			}
		}
		merged.Set(g.Role, combined...)
	}
	return merged
}

// UnmarshalYAML decodes a mapping of role to candidate list, keeping the
// document's role order.
func (s *Synonyms) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("synonyms: expected mapping at line %d", node.Line)
	}
	*s = Synonyms{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var candidates []string
		if err := node.Content[i+1].Decode(&candidates); err != nil {
			return fmt.Errorf("synonyms: role %q: %w", node.Content[i].Value, err)
		}
		s.Set(node.Content[i].Value, candidates...)
	}
	return nil
}

// MarshalYAML encodes the table as an ordered mapping.
func (s Synonyms) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, g := range s.groups {
		var value yaml.Node
		if err := value.Encode(g.Candidates); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: g.Role}, &value)
	}
	return node, nil
}

// LoadSynonyms reads a YAML synonyms file and merges it into the built-in table.
func LoadSynonyms(path string) (Synonyms, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Synonyms{}, fmt.Errorf("failed to read synonyms file: %w", err)
	}

	var extra Synonyms
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return Synonyms{}, fmt.Errorf("failed to parse synonyms file %s: %w", path, err)
	}

	return DefaultSynonyms().Merge(extra), nil
}

package policy

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

var flatRequiredFields = []string{"id", "metric_key", "threshold", "operator"}

// parseFlat reads a bare list of controls. Entries missing any required field
// are dropped.
func (n *normalizer) parseFlat(doc FlatDocument) (*Policy, error) {
	policy := &Policy{Title: flatTitle}

	for i, raw := range doc.Items {
		item, ok := asMap(raw)
		if !ok {
			n.logger.Debug().Int("index", i).Msg("Skipping non-mapping flat entry")
			continue
		}
		if !hasAll(item, flatRequiredFields) {
			n.logger.Debug().Int("index", i).Msg("Skipping flat entry with missing fields")
			continue
		}

		id, _ := stringField(item, "id")
		metricKey, _ := stringField(item, "metric_key")
		operator, _ := stringField(item, "operator")
		rawThreshold, _ := stringField(item, "threshold")

		threshold, err := parseThreshold(rawThreshold)
		if err != nil {
			return nil, &FormatError{
				Source:    n.source,
				ControlID: id,
				Message:   fmt.Sprintf("threshold %q is not numeric", rawThreshold),
				Err:       err,
			}
		}

		description, _ := stringField(item, "description")
		severity := SeverityLow
		if s, ok := stringField(item, "severity"); ok {
			severity = Severity(s)
		}

		control := Control{
			ID:          id,
			Description: description,
			Severity:    severity,
			MetricKey:   metricKey,
			Threshold:   threshold,
			Operator:    operator,
		}

		if mapping, ok := asMap(item["input_mapping"]); ok {
			for _, role := range n.flatKeys(i, "input_mapping", mapping) {
				if variable, ok := scalarString(mapping[role]); ok {
					control.InputMapping.Set(role, variable)
					control.RequiredVars = append(control.RequiredVars, variable)
				}
			}
		}
		if params, ok := asMap(item["params"]); ok {
			for _, name := range n.flatKeys(i, "params", params) {
				if value, ok := scalarString(params[name]); ok {
					control.Params.Set(name, value)
				}
			}
		}

		policy.Controls = append(policy.Controls, control)
	}

	return policy, nil
}

func hasAll(m map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

// flatKeys returns the keys of field in flat entry index in the order they were
// written. Documents without a YAML node tree fall back to key order.
func (n *normalizer) flatKeys(index int, field string, m map[string]any) []string {
	keys := declaredKeys(n.node, index, field)
	if len(keys) != len(m) {
		return sortedKeys(m)
	}
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return sortedKeys(m)
		}
	}
	return keys
}

func declaredKeys(doc *yaml.Node, index int, field string) []string {
	if doc == nil || doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	list := resolveAlias(doc.Content[0])
	if list.Kind != yaml.SequenceNode || index >= len(list.Content) {
		return nil
	}
	value := mappingValue(resolveAlias(list.Content[index]), field)
	if value == nil || value.Kind != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keys = append(keys, value.Content[i].Value)
	}
	return keys
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return resolveAlias(m.Content[i+1])
		}
	}
	return nil
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

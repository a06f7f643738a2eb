package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prop is a single name/value property as found in OSCAL "props" arrays.
type Prop struct {
	Name  string
	Value string
}

// Props is an ordered string-to-string container. Setting an existing name
// replaces its value but keeps its original position.
type Props struct {
	items []Prop
	index map[string]int
}

// NewProps builds a Props from name/value pairs.
func NewProps(pairs ...Prop) Props {
	var p Props
	for _, pair := range pairs {
		p.Set(pair.Name, pair.Value)
	}
	return p
}

// Set stores value under name.
func (p *Props) Set(name, value string) {
	if i, ok := p.index[name]; ok {
		p.items[i].Value = value
		return
	}
	if p.index == nil {
		p.index = make(map[string]int)
	}
	p.index[name] = len(p.items)
	p.items = append(p.items, Prop{Name: name, Value: value})
}

// Lookup returns the value stored under name and whether it was present.
func (p Props) Lookup(name string) (string, bool) {
	i, ok := p.index[name]
	if !ok {
		return "", false
	}
	return p.items[i].Value, true
}

// Get returns the value stored under name, or "" when absent.
func (p Props) Get(name string) string {
	v, _ := p.Lookup(name)
	return v
}

// GetOr returns the value stored under name, or fallback when absent.
func (p Props) GetOr(name, fallback string) string {
	if v, ok := p.Lookup(name); ok {
		return v
	}
	return fallback
}

// Has reports whether name is present.
func (p Props) Has(name string) bool {
	_, ok := p.index[name]
	return ok
}

// Len returns the number of properties.
func (p Props) Len() int {
	return len(p.items)
}

// Keys returns property names in insertion order.
func (p Props) Keys() []string {
	keys := make([]string, len(p.items))
	for i, item := range p.items {
		keys[i] = item.Name
	}
	return keys
}

// Items returns a copy of the properties in insertion order.
func (p Props) Items() []Prop {
	out := make([]Prop, len(p.items))
	copy(out, p.items)
	return out
}

// WithPrefix returns the properties whose name starts with prefix, with the
// prefix stripped from the returned names.
func (p Props) WithPrefix(prefix string) Props {
	var out Props
	for _, item := range p.items {
		if name, ok := strings.CutPrefix(item.Name, prefix); ok {
			out.Set(name, item.Value)
		}
	}
	return out
}

// Float parses the value stored under name as a float64.
func (p Props) Float(name string) (float64, bool, error) {
	v, ok := p.Lookup(name)
	if !ok {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, true, fmt.Errorf("property %q: %w", name, err)
	}
	return f, true, nil
}

// Map returns the properties as a plain map.
func (p Props) Map() map[string]string {
	out := make(map[string]string, len(p.items))
	for _, item := range p.items {
		out[item.Name] = item.Value
	}
	return out
}

// IsZero lets yaml omit empty containers.
func (p Props) IsZero() bool {
	return len(p.items) == 0
}

// MarshalJSON encodes the properties as a JSON object, preserving order.
func (p Props) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range p.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(item.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(item.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving key order.
func (p *Props) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("props: expected object")
	}
	*p = Props{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		value, _ := scalarString(raw)
		p.Set(key, value)
	}
	_, err = dec.Token()
	return err
}

// MarshalYAML encodes the properties as a YAML mapping, preserving order.
func (p Props) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, item := range p.items {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: item.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: item.Value},
		)
	}
	return node, nil
}

// UnmarshalYAML decodes a YAML mapping, preserving key order.
func (p *Props) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("props: expected mapping at line %d", value.Line)
	}
	*p = Props{}
	for i := 0; i+1 < len(value.Content); i += 2 {
		p.Set(value.Content[i].Value, value.Content[i+1].Value)
	}
	return nil
}

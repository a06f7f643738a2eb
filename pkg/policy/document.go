package policy

import (
	"fmt"
	"sort"
	"strconv"
)

// RootKeys are the mapping keys recognized as OSCAL roots, in detection order.
var RootKeys = []string{"assessment-plan", "catalog", "profile", "component-definition"}

// Document is a decoded policy document whose dialect has been detected.
// Exactly one of the concrete variants below implements it.
type Document interface {
	isDocument()
}

// OSCALDocument is a mapping rooted at one of RootKeys.
type OSCALDocument struct {
	// RootKey is the key under which Root was found.
	RootKey string

	// Root is the value stored under RootKey.
	Root map[string]any
}

// FlatDocument is a bare list of control entries.
type FlatDocument struct {
	Items []any
}

func (OSCALDocument) isDocument() {}
func (FlatDocument) isDocument()  {}

// Detect classifies a decoded document. Mapping roots take precedence over the
// flat list form; anything else is a *FormatError.
func Detect(raw any) (Document, error) {
	if m, ok := asMap(raw); ok {
		for _, key := range RootKeys {
			value, present := m[key]
			if !present {
				continue
			}
			root, ok := asMap(value)
			if !ok {
				return nil, &FormatError{Message: fmt.Sprintf("root element %q is not a mapping", key)}
			}
			return OSCALDocument{RootKey: key, Root: root}, nil
		}
		return nil, &FormatError{Message: "missing root element (assessment-plan, catalog, profile, component-definition)"}
	}

	if items, ok := raw.([]any); ok {
		return FlatDocument{Items: items}, nil
	}

	return nil, &FormatError{Message: fmt.Sprintf("unsupported document type %T", raw)}
}

// asMap normalizes the two mapping shapes yaml.v3 can produce.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	case nil:
		return nil, false
	default:
		return nil, false
	}
}

func asSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []map[string]any:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out
	default:
		return nil
	}
}

// scalarString renders a YAML/JSON scalar as the string form a document author
// would have written. Non-scalars report false.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case uint64:
		return strconv.FormatUint(s, 10), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		return "", false
	}
}

// stringField returns m[key] as a string when it is a scalar.
func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	return scalarString(v)
}

// propsOf collects a node's "props" array, ignoring entries missing a name or value.
func propsOf(node map[string]any) Props {
	var props Props
	for _, raw := range asSlice(node["props"]) {
		entry, ok := asMap(raw)
		if !ok {
			continue
		}
		name, okName := stringField(entry, "name")
		value, okValue := stringField(entry, "value")
		if !okName || !okValue {
			continue
		}
		props.Set(name, value)
	}
	return props
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

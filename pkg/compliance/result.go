package compliance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/policy"
)

// Metadata is an ordered key/value bag of diagnostic context attached to a
// result. Keys keep insertion order when encoded.
type Metadata struct {
	keys   []string
	values map[string]any
}

// NewMetadata builds a bag from a map, with keys sorted.
func NewMetadata(m map[string]any) Metadata {
	var md Metadata
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		md.Set(k, m[k])
	}
	return md
}

// Set stores value under key. An existing key keeps its position.
func (m *Metadata) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value under key.
func (m Metadata) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in order.
func (m Metadata) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of entries.
func (m Metadata) Len() int {
	return len(m.keys)
}

// MarshalJSON encodes the bag as an object in key order.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping its key order.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	*m = Metadata{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("metadata: expected object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("metadata %q: %w", key, err)
		}
		m.Set(key, value)
	}
	_, err = dec.Token()
	return err
}

// ComplianceResult is the outcome of one evaluated control.
type ComplianceResult struct {
	ControlID   string          `json:"control_id"`
	Description string          `json:"description"`
	MetricKey   string          `json:"metric_key"`
	Threshold   float64         `json:"threshold"`
	ActualValue *float64        `json:"actual_value"`
	Operator    string          `json:"operator"`
	Passed      bool            `json:"passed"`
	Severity    policy.Severity `json:"severity"`
	Metadata    Metadata        `json:"metadata"`
}

// Actual returns the computed value, or 0 when none was recorded.
func (r ComplianceResult) Actual() float64 {
	if r.ActualValue == nil {
		return 0
	}
	return *r.ActualValue
}

func newResult(ctrl policy.Control, actual float64, meta Metadata) ComplianceResult {
	return ComplianceResult{
		ControlID:   ctrl.ID,
		Description: ctrl.Description,
		MetricKey:   ctrl.MetricKey,
		Threshold:   ctrl.Threshold,
		ActualValue: &actual,
		Operator:    ctrl.Operator,
		Passed:      Compare(actual, ctrl.Operator, ctrl.Threshold),
		Severity:    ctrl.Severity,
		Metadata:    meta,
	}
}

// Summary aggregates a result list.
type Summary struct {
	Total      int                     `json:"total"`
	Passed     int                     `json:"passed"`
	Failed     int                     `json:"failed"`
	PassRate   float64                 `json:"pass_rate"`
	FailedBy   map[policy.Severity]int `json:"failed_by_severity"`
	FailedIDs  []string                `json:"failed_controls,omitempty"`
	MaxFailure policy.Severity         `json:"max_failed_severity,omitempty"`
}

// Summarize counts results. PassRate is 1 for an empty list.
func Summarize(results []ComplianceResult) Summary {
	s := Summary{
		Total:    len(results),
		PassRate: 1,
		FailedBy: make(map[policy.Severity]int),
	}
	for _, r := range results {
		if r.Passed {
			s.Passed++
			continue
		}
		s.Failed++
		s.FailedBy[r.Severity]++
		s.FailedIDs = append(s.FailedIDs, r.ControlID)
		if s.MaxFailure == "" || r.Severity.Rank() > s.MaxFailure.Rank() {
			s.MaxFailure = r.Severity
		}
	}
	if s.Total > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Total)
	}
	return s
}

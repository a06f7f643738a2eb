package policy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	propMetricKey = "metric_key"
	propThreshold = "threshold"
	propOperator  = "operator"
	propSeverity  = "severity"

	inputPrefix = "input:"
	paramPrefix = "param:"

	defaultOperator = "=="

	embeddedTitle = "Embedded Policy"
	flatTitle     = "Flat Policy"
)

// normalizer turns a detected Document into a Policy.
type normalizer struct {
	logger zerolog.Logger

	// source is used in error messages.
	source string

	// stem is the file name without extension, empty for in-memory documents.
	stem string

	// node is the YAML node tree of the document, if it was decoded from YAML.
	node *yaml.Node
}

func (n *normalizer) normalize(doc Document) (*Policy, error) {
	switch d := doc.(type) {
	case OSCALDocument:
		return n.parseOSCAL(d)
	case FlatDocument:
		return n.parseFlat(d)
	default:
		return nil, &FormatError{Source: n.source, Message: fmt.Sprintf("unsupported document variant %T", doc)}
	}
}

func (n *normalizer) parseOSCAL(doc OSCALDocument) (*Policy, error) {
	root := doc.Root
	policy := &Policy{Title: n.title(root)}

	inventory := n.inventory(root)

	for _, impl := range n.controlImplementations(root) {
		for _, raw := range asSlice(impl["implemented-requirements"]) {
			req, ok := asMap(raw)
			if !ok {
				n.logger.Debug().Str("root", doc.RootKey).Msg("Skipping non-mapping implemented requirement")
				continue
			}
			controls, err := n.requirementControls(req, inventory)
			if err != nil {
				return nil, err
			}
			policy.Controls = append(policy.Controls, controls...)
		}
	}

	for _, raw := range asSlice(root["controls"]) {
		if err := n.catalogControls(raw, policy); err != nil {
			return nil, err
		}
	}

	return policy, nil
}

func (n *normalizer) title(root map[string]any) string {
	if meta, ok := asMap(root["metadata"]); ok {
		if title, ok := stringField(meta, "title"); ok {
			return title
		}
	}
	if n.stem != "" {
		return n.stem
	}
	return embeddedTitle
}

// inventory indexes inventory item props by uuid. The local-definitions
// location wins; the root location is only consulted when it yields nothing.
func (n *normalizer) inventory(root map[string]any) map[string]Props {
	var items []any
	if local, ok := asMap(root["local-definitions"]); ok {
		items = asSlice(local["inventory-items"])
	}
	if len(items) == 0 {
		items = asSlice(root["inventory-items"])
	}

	inventory := make(map[string]Props, len(items))
	for _, raw := range items {
		item, ok := asMap(raw)
		if !ok {
			continue
		}
		id, ok := stringField(item, "uuid")
		if !ok || id == "" {
			continue
		}
		inventory[id] = propsOf(item)
	}
	return inventory
}

func (n *normalizer) controlImplementations(root map[string]any) []map[string]any {
	var impls []map[string]any
	collect := func(v any) {
		for _, raw := range asSlice(v) {
			if impl, ok := asMap(raw); ok {
				impls = append(impls, impl)
			}
		}
	}
	if reviewed, ok := asMap(root["reviewed-controls"]); ok {
		collect(reviewed["control-implementations"])
	}
	collect(root["control-implementations"])
	return impls
}

// requirementControls binds one implemented requirement. Direct metric props
// win; otherwise every "#uuid" link into the inventory yields a control.
func (n *normalizer) requirementControls(req map[string]any, inventory map[string]Props) ([]Control, error) {
	id, _ := stringField(req, "control-id")
	description, _ := stringField(req, "description")
	if description == "" {
		description = fmt.Sprintf("Control %s", id)
	}

	props := propsOf(req)
	severity := Severity(props.GetOr(propSeverity, string(SeverityLow)))

	if props.Has(propMetricKey) {
		control, err := n.buildControl(id, description, severity, props)
		if err != nil {
			return nil, err
		}
		return []Control{control}, nil
	}

	var controls []Control
	for _, raw := range asSlice(req["links"]) {
		link, ok := asMap(raw)
		if !ok {
			continue
		}
		href, _ := stringField(link, "href")
		ref, ok := strings.CutPrefix(href, "#")
		if !ok {
			continue
		}
		def, ok := inventory[ref]
		if !ok || !def.Has(propMetricKey) {
			n.logger.Debug().Str("control", id).Str("href", href).Msg("Link does not resolve to a metric definition")
			continue
		}
		sev := severity
		if !props.Has(propSeverity) {
			sev = Severity(def.GetOr(propSeverity, string(SeverityLow)))
		}
		control, err := n.buildControl(id, description, sev, def)
		if err != nil {
			return nil, err
		}
		controls = append(controls, control)
	}

	if len(controls) == 0 {
		n.logger.Debug().Str("control", id).Msg("Requirement carries no metric binding")
	}
	return controls, nil
}

func (n *normalizer) catalogControls(raw any, policy *Policy) error {
	node, ok := asMap(raw)
	if !ok {
		return nil
	}

	props := propsOf(node)
	if props.Has(propMetricKey) {
		id, ok := stringField(node, "id")
		if !ok {
			id = "unknown"
		}
		description, ok := stringField(node, "title")
		if !ok {
			description, _ = stringField(node, "id")
		}
		severity := Severity(props.GetOr(propSeverity, string(SeverityLow)))
		control, err := n.buildControl(id, description, severity, props)
		if err != nil {
			return err
		}
		policy.Controls = append(policy.Controls, control)
	}

	for _, sub := range asSlice(node["controls"]) {
		if err := n.catalogControls(sub, policy); err != nil {
			return err
		}
	}
	return nil
}

// buildControl applies defaults and splits input:/param: props. metric carries
// metric_key, threshold, operator and the prefixed entries.
func (n *normalizer) buildControl(id, description string, severity Severity, metric Props) (Control, error) {
	threshold, err := parseThreshold(metric.GetOr(propThreshold, "0"))
	if err != nil {
		return Control{}, &FormatError{
			Source:    n.source,
			ControlID: id,
			Message:   fmt.Sprintf("threshold %q is not numeric", metric.Get(propThreshold)),
			Err:       err,
		}
	}

	control := Control{
		ID:           id,
		Description:  description,
		Severity:     severity,
		MetricKey:    metric.Get(propMetricKey),
		Threshold:    threshold,
		Operator:     metric.GetOr(propOperator, defaultOperator),
		InputMapping: metric.WithPrefix(inputPrefix),
		Params:       metric.WithPrefix(paramPrefix),
	}
	for _, item := range control.InputMapping.Items() {
		control.RequiredVars = append(control.RequiredVars, item.Value)
	}

	return control, nil
}

func parseThreshold(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

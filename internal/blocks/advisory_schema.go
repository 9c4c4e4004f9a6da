package blocks

import "fmt"

// schemaField describes one allowed key in a strict advisory payload schema.
// Kind is one of "string", "int", "bool", "array", "object"; for "array" or
// "object", Item/Fields describe the nested shape (strict: unknown nested
// keys are also rejected).
type schemaField struct {
	Kind     string
	MaxBytes int
	Item     *schemaField
	Fields   map[string]schemaField
	Required bool
}

const maxFieldBytes = 8192

// advisorySchemas defines the strict per-type payload schema used to
// validate advisory-<type> JSON bodies. Unknown keys
// at any depth are rejected.
var advisorySchemas = map[string]map[string]schemaField{
	"brainstorm": {
		"topic": {Kind: "string", MaxBytes: maxFieldBytes, Required: true},
		"options": {Kind: "array", Required: true, Item: &schemaField{
			Kind: "object",
			Fields: map[string]schemaField{
				"title":       {Kind: "string", MaxBytes: maxFieldBytes, Required: true},
				"label":       {Kind: "string", MaxBytes: maxFieldBytes},
				"action":      {Kind: "string", MaxBytes: maxFieldBytes},
				"description": {Kind: "string", MaxBytes: maxFieldBytes},
			},
		}},
		"recommendation": {Kind: "string", MaxBytes: maxFieldBytes},
		"trend":          {Kind: "string", MaxBytes: maxFieldBytes},
	},
	"risk_assessment": {
		"summary": {Kind: "string", MaxBytes: maxFieldBytes},
		"risks": {Kind: "array", Required: true, Item: &schemaField{
			Kind: "object",
			Fields: map[string]schemaField{
				"name":       {Kind: "string", MaxBytes: maxFieldBytes, Required: true},
				"likelihood": {Kind: "string", MaxBytes: maxFieldBytes},
				"impact":     {Kind: "string", MaxBytes: maxFieldBytes},
				"mitigation": {Kind: "string", MaxBytes: maxFieldBytes},
			},
		}},
		"trendConfidence": {Kind: "string", MaxBytes: maxFieldBytes},
	},
	"scenario": {
		"name":        {Kind: "string", MaxBytes: maxFieldBytes, Required: true},
		"description": {Kind: "string", MaxBytes: maxFieldBytes},
		"triggers":    {Kind: "array", Item: &schemaField{Kind: "string", MaxBytes: maxFieldBytes}},
		"outcomes":    {Kind: "array", Item: &schemaField{Kind: "string", MaxBytes: maxFieldBytes}},
		"trend":       {Kind: "string", MaxBytes: maxFieldBytes},
	},
	"strategic_review": {
		"summary":                 {Kind: "string", MaxBytes: maxFieldBytes},
		"highest_leverage_action": {Kind: "string", MaxBytes: maxFieldBytes},
		"assumptions_to_check":    {Kind: "array", Item: &schemaField{Kind: "string", MaxBytes: maxFieldBytes}},
		"trendConfidence":         {Kind: "string", MaxBytes: maxFieldBytes},
	},
}

// schemaViolation names one of the payload schema-rejection reasons.
type schemaViolation struct {
	Reason string
	Detail string
}

func (v schemaViolation) Error() string {
	return fmt.Sprintf("%s: %s", v.Reason, v.Detail)
}

// validatePayload strictly validates payload against the schema for
// advisoryType, rejecting unknown keys at any depth.
func validatePayload(advisoryType string, payload map[string]interface{}) *schemaViolation {
	schema, ok := advisorySchemas[advisoryType]
	if !ok {
		return &schemaViolation{Reason: "unknown_schema_type", Detail: advisoryType}
	}
	return validateObject(payload, schema, true)
}

func validateObject(obj map[string]interface{}, schema map[string]schemaField, topLevel bool) *schemaViolation {
	for key := range obj {
		if _, known := schema[key]; !known {
			reason := "unknown_key_nested"
			if topLevel {
				reason = "unknown_key_top_level"
			}
			return &schemaViolation{Reason: reason, Detail: key}
		}
	}
	for key, field := range schema {
		val, present := obj[key]
		if !present {
			if field.Required {
				return &schemaViolation{Reason: "missing_required_key", Detail: key}
			}
			continue
		}
		if v := validateField(key, val, field); v != nil {
			return v
		}
	}
	return nil
}

func validateField(key string, val interface{}, field schemaField) *schemaViolation {
	switch field.Kind {
	case "string":
		s, ok := val.(string)
		if !ok {
			return &schemaViolation{Reason: "zod_validation_failed", Detail: key + " must be a string"}
		}
		if field.MaxBytes > 0 && len(s) > field.MaxBytes {
			return &schemaViolation{Reason: "field_size_exceeded", Detail: key}
		}
	case "int":
		switch val.(type) {
		case float64, int, int64:
		default:
			return &schemaViolation{Reason: "zod_validation_failed", Detail: key + " must be a number"}
		}
	case "bool":
		if _, ok := val.(bool); !ok {
			return &schemaViolation{Reason: "zod_validation_failed", Detail: key + " must be a bool"}
		}
	case "array":
		arr, ok := val.([]interface{})
		if !ok {
			return &schemaViolation{Reason: "zod_validation_failed", Detail: key + " must be an array"}
		}
		if field.Item == nil {
			return nil
		}
		for _, item := range arr {
			if field.Item.Kind == "object" {
				obj, ok := item.(map[string]interface{})
				if !ok {
					return &schemaViolation{Reason: "zod_validation_failed", Detail: key + " item must be an object"}
				}
				if v := validateObject(obj, field.Item.Fields, false); v != nil {
					return v
				}
			} else if v := validateField(key, item, *field.Item); v != nil {
				return v
			}
		}
	case "object":
		obj, ok := val.(map[string]interface{})
		if !ok {
			return &schemaViolation{Reason: "zod_validation_failed", Detail: key + " must be an object"}
		}
		return validateObject(obj, field.Fields, false)
	}
	return nil
}

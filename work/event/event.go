// Package event maps symbolic application events to the background jobs
// they fan out into. Event definitions are static configuration: a payload
// schema plus an ordered list of job types enqueued per trigger.
package event

import (
	"github.com/threadline/threadline/errors"
)

// FieldKind names the JSON type a payload field must decode to.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
	KindBool   FieldKind = "bool"
	KindObject FieldKind = "object"
	KindArray  FieldKind = "array"
	KindAny    FieldKind = "any"
)

// Field describes one payload key.
type Field struct {
	Kind     FieldKind
	Required bool
}

// Schema maps payload keys to field rules. Keys not listed in the schema
// pass through untouched; the schema constrains, it does not strip.
type Schema map[string]Field

// Validate checks data against the schema. Failures are marked with
// ErrValidation and reported before anything is enqueued.
func (s Schema) Validate(data map[string]interface{}) error {
	for key, field := range s {
		value, present := data[key]
		if !present {
			if field.Required {
				return errors.NewValidationError("missing required field: %s", key)
			}
			continue
		}
		if err := checkKind(key, value, field.Kind); err != nil {
			return err
		}
	}
	return nil
}

func checkKind(key string, value interface{}, kind FieldKind) error {
	if kind == KindAny || value == nil {
		return nil
	}

	ok := false
	switch kind {
	case KindString:
		_, ok = value.(string)
	case KindNumber:
		// Payloads round-trip through encoding/json, where every number is
		// a float64, but accept native ints from in-process callers too.
		switch value.(type) {
		case float64, float32, int, int32, int64, uint, uint32, uint64:
			ok = true
		}
	case KindBool:
		_, ok = value.(bool)
	case KindObject:
		_, ok = value.(map[string]interface{})
	case KindArray:
		_, ok = value.([]interface{})
	default:
		return errors.Newf("unknown field kind %q for field %s", kind, key)
	}

	if !ok {
		return errors.NewValidationError("field %s must be %s, got %T", key, kind, value)
	}
	return nil
}

// Definition binds an event name to its payload schema and the job types a
// trigger fans out into. Order is enqueue order only; the jobs execute
// independently.
type Definition struct {
	Name     string
	Schema   Schema
	JobTypes []string
}

func (d Definition) validate() error {
	if d.Name == "" {
		return errors.New("event definition needs a name")
	}
	if len(d.JobTypes) == 0 {
		return errors.Newf("event %s maps to no job types", d.Name)
	}
	for _, jt := range d.JobTypes {
		if jt == "" {
			return errors.Newf("event %s contains an empty job type", d.Name)
		}
	}
	return nil
}

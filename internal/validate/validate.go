// ABOUTME: Required-field and shape validation of payloads before they are sent upstream
// ABOUTME: Compiles the embedded JSON Schemas once and validates Go values against them

package validate

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema names.
const (
	Plan             = "plan"
	Plans            = "plans"
	BillingConfig    = "billing_config"
	PricingConfig    = "pricing_config"
	CreditAdjustment = "credit_adjustment"
	FlowMapping      = "flow_mapping"
	Session          = "session"
	RolloutRequest   = "rollout_request"
)

// Error lists the problems found in a payload.
type Error struct {
	Schema   string
	Problems []string
}

func (e *Error) Error() string {
	return strings.Join(e.Problems, "; ")
}

// Validator holds the compiled schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles every embedded schema.
func New() (*Validator, error) {
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, fmt.Errorf("reading schemas: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	var names []string
	for _, e := range entries {
		data, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading schema %s: %w", e.Name(), err)
		}
		if err := c.AddResource(resourceURL(e.Name()), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("adding schema %s: %w", e.Name(), err)
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		s, err := c.Compile(resourceURL(name + ".json"))
		if err != nil {
			return nil, fmt.Errorf("compiling schema %s: %w", name, err)
		}
		v.schemas[name] = s
	}
	return v, nil
}

// MustNew is New for package initialisation; it panics on error.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

func resourceURL(file string) string {
	return "mem://schemas/" + file
}

// Validate encodes payload as JSON and checks it against the named schema.
func (v *Validator) Validate(schema string, payload any) error {
	s, ok := v.schemas[schema]
	if !ok {
		return fmt.Errorf("unknown schema %q", schema)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}

	err = s.Validate(doc)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	return &Error{Schema: schema, Problems: problems(ve)}
}

// problems flattens the validation tree into "field: message" strings.
func problems(ve *jsonschema.ValidationError) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := strings.TrimPrefix(e.InstanceLocation, "/")
			field = strings.ReplaceAll(field, "/", ".")
			msg := e.Message
			if field != "" {
				msg = field + ": " + msg
			}
			if !seen[msg] {
				seen[msg] = true
				out = append(out, msg)
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.Strings(out)
	return out
}

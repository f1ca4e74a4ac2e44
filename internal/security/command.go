package security

import (
	"bytes"
	"encoding/json"
	"strings"
)

// CommandOperation is one edit command taken from an admin POST body. A body
// is an object whose top-level keys each name one command; operations are
// processed in document order. Validation problems accumulate on the
// operation instead of aborting the remaining keys, so a single response can
// report every error.
type CommandOperation struct {
	Name  string
	Value any

	errs []string
}

// ParseCommands decodes an admin POST body into its ordered operations.
func ParseCommands(body []byte) ([]*CommandOperation, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	tok, err := dec.Token()
	if err != nil {
		return nil, BadRequest("invalid command body: %v", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, BadRequest("command body must be a JSON object")
	}

	var ops []*CommandOperation
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, BadRequest("invalid command body: %v", err)
		}
		name, _ := keyTok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, BadRequest("invalid value for command %q: %v", name, err)
		}
		ops = append(ops, &CommandOperation{Name: name, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, BadRequest("invalid command body: %v", err)
	}

	if len(ops) == 0 {
		return nil, BadRequest("no commands specified")
	}
	return ops, nil
}

// AddError records a validation problem against this operation.
func (op *CommandOperation) AddError(msg string) {
	op.errs = append(op.errs, msg)
}

// Errors returns the validation problems recorded so far.
func (op *CommandOperation) Errors() []string {
	return op.errs
}

// DataMap returns the operation value as an object, recording an error if it
// is anything else.
func (op *CommandOperation) DataMap() (map[string]any, bool) {
	m, ok := op.Value.(map[string]any)
	if !ok {
		op.AddError("command value must be an object")
		return nil, false
	}
	return m, true
}

// CollectErrors gathers the accumulated errors of a batch into one
// BadRequest, or returns nil if the batch is clean.
func CollectErrors(ops []*CommandOperation) error {
	var msgs []string
	for _, op := range ops {
		msgs = append(msgs, op.errs...)
	}
	if len(msgs) == 0 {
		return nil
	}
	return BadRequest("%s", strings.Join(msgs, "; "))
}

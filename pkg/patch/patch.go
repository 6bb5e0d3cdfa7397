// Package patch applies RFC 6902 JSON Patch documents to todo items and
// validates the outcome field by field.
package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/no-abramov/todoapi/pkg/storage"
)

// PatchKey collects the errors of the patch document itself.
const PatchKey = "patch"

// ValidationError maps a field name to the problems found with it.
type ValidationError struct {
	Errors map[string][]string `json:"errors"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Errors))
	for k := range e.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Errors[k], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Errors == nil {
		e.Errors = make(map[string][]string)
	}
	e.Errors[field] = append(e.Errors[field], msg)
}

func (e *ValidationError) empty() bool {
	return len(e.Errors) == 0
}

func patchError(err error) *ValidationError {
	ve := &ValidationError{}
	ve.add(PatchKey, err.Error())
	return ve
}

// ApplyTodo applies doc to item and returns the patched copy. Only title,
// description and isCompleted may change; any other difference yields a
// *ValidationError. ID, CreatedDate and Version are carried over from item.
func ApplyTodo(item storage.TodoItem, doc []byte) (storage.TodoItem, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(doc), []byte("[")) {
		return storage.TodoItem{}, patchError(fmt.Errorf("patch document must be a JSON array of operations"))
	}

	p, err := jsonpatch.DecodePatch(doc)
	if err != nil {
		return storage.TodoItem{}, patchError(err)
	}

	orig, err := json.Marshal(item)
	if err != nil {
		return storage.TodoItem{}, err
	}

	patched, err := p.Apply(orig)
	if err != nil {
		return storage.TodoItem{}, patchError(err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patched, &fields); err != nil || fields == nil {
		return storage.TodoItem{}, patchError(fmt.Errorf("patched document is not an object"))
	}

	out := item
	ve := &ValidationError{}

	for name, raw := range fields {
		switch name {
		case "id":
			var id int64
			if err := json.Unmarshal(raw, &id); err != nil || id != item.ID {
				ve.add(name, "id cannot be changed")
			}
		case "createdDate":
			var ts time.Time
			if err := json.Unmarshal(raw, &ts); err != nil || !ts.Equal(item.CreatedDate) {
				ve.add(name, "createdDate cannot be changed")
			}
		case "title":
			out.Title = nullableString(ve, name, raw)
		case "description":
			out.Description = nullableString(ve, name, raw)
		case "isCompleted":
			var b bool
			if isNull(raw) || json.Unmarshal(raw, &b) != nil {
				ve.add(name, "isCompleted must be a boolean")
			}
			out.IsCompleted = b
		default:
			ve.add(name, fmt.Sprintf("unknown field %q", name))
		}
	}

	// A removed member falls back to its zero value, except the immutable ones.
	for _, name := range []string{"id", "createdDate"} {
		if _, ok := fields[name]; !ok {
			ve.add(name, name+" cannot be removed")
		}
	}
	if _, ok := fields["title"]; !ok {
		out.Title = nil
	}
	if _, ok := fields["description"]; !ok {
		out.Description = nil
	}
	if _, ok := fields["isCompleted"]; !ok {
		out.IsCompleted = false
	}

	if !ve.empty() {
		return storage.TodoItem{}, ve
	}

	return out, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func nullableString(ve *ValidationError, name string, raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		ve.add(name, name+" must be a string or null")
		return nil
	}
	return &s
}

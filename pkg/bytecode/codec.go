package bytecode

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Encode serializes root to its compact JSON tuple form.
func Encode(root *Root) ([]byte, error) {
	return marshalCompact(ToTuple(root))
}

// Decode parses the JSON tuple form. Input whose outermost instruction is
// not a ROOT is rejected.
func Decode(data []byte) (*Root, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("bytecode: decode json: %w", err)
	}
	return rootFromValue(v)
}

func rootFromValue(v any) (*Root, error) {
	inst, err := FromTuple(v)
	if err != nil {
		return nil, err
	}
	root, ok := inst.(*Root)
	if !ok {
		return nil, decodeErrorf("expected ROOT, got %s", inst.Opcode())
	}
	return root, nil
}

// MarshalJSON implements json.Marshaler.
func (r *Root) MarshalJSON() ([]byte, error) {
	return Encode(r)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Root) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*r = *decoded
	return nil
}

// marshalCompact is json.Marshal without HTML escaping, so template text
// stays readable in persisted and printed forms.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("bytecode: encode json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

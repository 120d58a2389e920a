package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical options so equal trees always encode to equal
// bytes; the compiled-template cache relies on that.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalCBOR serializes root's tuple form to CBOR.
func MarshalCBOR(root *Root) ([]byte, error) {
	b, err := cborEncMode.Marshal(ToTuple(root))
	if err != nil {
		return nil, fmt.Errorf("bytecode: marshal cbor: %w", err)
	}
	return b, nil
}

// UnmarshalCBOR decodes bytes produced by MarshalCBOR.
func UnmarshalCBOR(data []byte) (*Root, error) {
	var v any
	if err := cbor.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal cbor: %w", err)
	}
	return rootFromValue(normalizeCBOR(v))
}

// normalizeCBOR converts the generic maps produced by the CBOR decoder to
// string-keyed maps, matching what encoding/json yields for Atom payloads.
func normalizeCBOR(v any) any {
	switch x := v.(type) {
	case []any:
		for i := range x {
			x[i] = normalizeCBOR(x[i])
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = normalizeCBOR(val)
		}
		return m
	}
	return v
}

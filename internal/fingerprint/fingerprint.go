// Package fingerprint computes deterministic cache keys over a namespace and
// an arbitrary, JSON-marshalable argument value.
//
// The digest is a SHA-256 hash of a canonical serialization of the argument:
// object keys are sorted recursively so that two structurally-equal values
// (regardless of the original field order) produce the same fingerprint.
// Sequences are hashed in the order given — order is significant for slices,
// not for maps/objects.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Fingerprint returns a 256-bit hex digest identifying (namespace, arg).
// The result is filesystem-safe (lowercase hex) and deterministic: equal
// inputs always produce equal output, regardless of map/struct field order.
func Fingerprint(namespace string, arg any) string {
	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{0}) // separator: namespace can never collide with canonical bytes
	canonicalize(h, arg)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalize writes a deterministic byte representation of v to h.
//
// v is first round-tripped through encoding/json (so structs, maps, slices,
// and primitives are all normalized to the same any-typed shape json.Unmarshal
// would produce), then walked recursively, sorting object keys at every
// level before writing them.
func canonicalize(h interface{ Write([]byte) (int, error) }, v any) {
	normalized := normalize(v)
	writeCanonical(h, normalized)
}

// normalize round-trips v through JSON to obtain a value built only from
// map[string]any, []any, float64, string, bool, and nil — the shape every
// caller's value collapses to, so that a struct and the equivalent map
// produce identical fingerprints.
func normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		// Marshal failures (channels, funcs) are a programmer error; fall
		// back to the value's fmt representation so Fingerprint never panics.
		return fmt.Sprintf("%#v", v)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return string(b)
	}
	return out
}

func writeCanonical(h interface{ Write([]byte) (int, error) }, v any) {
	switch val := v.(type) {
	case nil:
		h.Write([]byte("null"))
	case bool:
		if val {
			h.Write([]byte("true"))
		} else {
			h.Write([]byte("false"))
		}
	case float64:
		b, _ := json.Marshal(val)
		h.Write(b)
	case string:
		b, _ := json.Marshal(val)
		h.Write(b)
	case []any:
		h.Write([]byte{'['})
		for i, item := range val {
			if i > 0 {
				h.Write([]byte{','})
			}
			writeCanonical(h, item)
		}
		h.Write([]byte{']'})
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		h.Write([]byte{'{'})
		for i, k := range keys {
			if i > 0 {
				h.Write([]byte{','})
			}
			kb, _ := json.Marshal(k)
			h.Write(kb)
			h.Write([]byte{':'})
			writeCanonical(h, val[k])
		}
		h.Write([]byte{'}'})
	default:
		b, _ := json.Marshal(val)
		h.Write(b)
	}
}

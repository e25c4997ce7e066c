// Package keybuilder derives fetchkit's canonical request fingerprint
// (spec C2): METHOD:URL:paramsJson:bodyJson, with object keys sorted
// recursively so two logically equivalent requests produce byte-identical
// fingerprints regardless of caller-supplied key order.
//
// There is no teacher file for this concern (O-tero-... keys its caches by
// caller-supplied strings), so the recursive key-sort is built directly
// from spec.md §4.1 against stdlib encoding/json, matching the rest of the
// corpus' preference for JSON over any other wire format (pkg/utils.encoding.go).
package keybuilder

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Params is the shape callers pass for query parameters or a request body:
// arbitrary JSON-marshalable data, typically map[string]interface{} but not
// required to be.
type Params interface{}

// Build derives the canonical fingerprint for an HTTP-shaped request.
// method is upper-cased; for GET/HEAD/DELETE/OPTIONS the body segment is
// always empty regardless of what body is passed, per spec.md §4.1.
func Build(method, url string, params, body Params) string {
	m := strings.ToUpper(method)
	paramsJSON := canonicalJSON(params)
	bodyJSON := ""
	if hasBody(m) {
		bodyJSON = canonicalJSON(body)
	}
	return fmt.Sprintf("%s:%s:%s:%s", m, url, paramsJSON, bodyJSON)
}

func hasBody(method string) bool {
	switch method {
	case "GET", "HEAD", "DELETE", "OPTIONS":
		return false
	default:
		return true
	}
}

// canonicalJSON renders v as JSON with map keys sorted recursively at every
// level, independent of encoding/json's own key ordering (which already
// sorts map[string]T but not arbitrary nested types built from
// interface{}). Arrays preserve input order since they encode positional
// meaning (spec.md §4.1).
func canonicalJSON(v Params) string {
	if v == nil {
		return "null"
	}
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		writeObject(b, val)
	case map[string]string:
		m := make(map[string]interface{}, len(val))
		for k, s := range val {
			m[k] = s
		}
		writeObject(b, m)
	case []interface{}:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case nil:
		b.WriteString("null")
	default:
		// Strings, numbers, bools, and any other JSON-marshalable scalar:
		// delegate to encoding/json for correct escaping/number formatting.
		data, err := json.Marshal(val)
		if err != nil {
			b.WriteString("null")
			return
		}
		b.Write(data)
	}
}

func writeObject(b *strings.Builder, m map[string]interface{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		keyData, err := json.Marshal(k)
		if err != nil {
			keyData = []byte(`""`)
		}
		b.Write(keyData)
		b.WriteByte(':')
		writeCanonical(b, m[k])
	}
	b.WriteByte('}')
}

// WithFingerprint lets a caller bypass derivation entirely and supply a
// custom fingerprint (spec.md §4.1), returned verbatim.
func WithFingerprint(custom string) string {
	return custom
}

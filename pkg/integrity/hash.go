package integrity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Domain separates attribute digests from any other SHA-256 use.
// The version suffix leaves room for an algorithm migration.
const Domain = "chameleon/uow-attributes/v1"

// Hash computes the content hash of an attribute set.
// Format: hex(SHA256(Domain + 0x00 + canonical JSON)).
//
// Canonical JSON sorts object keys and writes integral numbers without a
// fraction, so 75000, int64(75000) and float64(75000) hash the same. This keeps
// the digest stable across stores that decode numbers differently.
func Hash(attributes map[string]any) (string, error) {
	canonical, err := MarshalCanonical(attributes)
	if err != nil {
		return "", fmt.Errorf("hash attributes: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(Domain))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MustHash is Hash for values known to be JSON-encodable. It panics otherwise.
func MustHash(attributes map[string]any) string {
	h, err := Hash(attributes)
	if err != nil {
		panic(err)
	}
	return h
}

// MarshalCanonical produces the deterministic encoding the hash is computed over.
// A nil map and an empty map encode identically.
func MarshalCanonical(attributes map[string]any) ([]byte, error) {
	if attributes == nil {
		attributes = map[string]any{}
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, attributes); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return writeCanonical(buf, i)
		}
		f, err := t.Float64()
		if err != nil {
			return fmt.Errorf("invalid number %q", t.String())
		}
		return writeCanonical(buf, f)
	case float32:
		return writeCanonical(buf, float64(t))
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("unsupported float value %v", t)
		}
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			fmt.Fprintf(buf, "%d", int64(t))
			return nil
		}
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return writeCanonical(buf, m)
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			break // []byte encodes as base64 like encoding/json
		}
		s := make([]any, rv.Len())
		for i := range s {
			s[i] = rv.Index(i).Interface()
		}
		return writeCanonical(buf, s)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

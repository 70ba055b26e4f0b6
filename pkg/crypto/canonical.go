// Package crypto implements the facto proof primitives: canonicalization
// (C1), hashing (C2), and signing (C3). The three live together because
// they share one fixed field subset and are never exercised independently.
package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ExecutionMeta is the canonical-form subset of a facto event's execution
// metadata. The other recognized fields (model_hash, max_tokens,
// sdk_language, tags) travel on the wire in event.ExecutionMeta but are
// excluded here by design. Keys outside the recognized set are not kept:
// event.ExecutionMeta has no field for them, so decoding drops them.
type ExecutionMeta struct {
	ModelID     *string
	Seed        *int64
	SDKVersion  *string
	Temperature *float64
	ToolCalls   []map[string]interface{}
}

// CanonicalEvent is the exact field subset that participates in an event's
// canonical bytes, in the fixed lexicographic order the wire format
// requires. Adding a field here is a breaking change to every previously
// signed event.
type CanonicalEvent struct {
	ActionType    string
	AgentID       string
	CompletedAt   int64
	ExecutionMeta *ExecutionMeta
	FactoID       string
	InputData     map[string]interface{}
	OutputData    map[string]interface{}
	ParentFactoID *string
	PrevHash      string
	SessionID     string
	StartedAt     int64
	Status        string
}

// CanonicalizationError wraps a value that could not be serialized into
// canonical form (infinities, NaN, or a type with no JSON representation).
type CanonicalizationError struct {
	Field string
	Err   error
}

func (e *CanonicalizationError) Error() string {
	return fmt.Sprintf("canonicalization: field %s: %v", e.Field, e.Err)
}

func (e *CanonicalizationError) Unwrap() error { return e.Err }

// CanonicalBytes serializes ev into the canonical JSON form: exactly the
// twelve top-level fields in lexicographic key order, no insignificant
// whitespace, recursively sorted object keys inside input_data/output_data/
// tool_calls, and exact-digit number formatting — no value is ever routed
// through float64, so a 19-digit nanosecond timestamp survives intact.
// Absent optional fields are emitted as JSON null, never omitted.
func CanonicalBytes(ev CanonicalEvent) ([]byte, error) {
	type field struct {
		key string
		fn  func() ([]byte, error)
	}
	fields := []field{
		{"action_type", func() ([]byte, error) { return marshalString(ev.ActionType) }},
		{"agent_id", func() ([]byte, error) { return marshalString(ev.AgentID) }},
		{"completed_at", func() ([]byte, error) { return marshalInt64(ev.CompletedAt) }},
		{"execution_meta", func() ([]byte, error) { return marshalExecutionMeta(ev.ExecutionMeta) }},
		{"facto_id", func() ([]byte, error) { return marshalString(ev.FactoID) }},
		{"input_data", func() ([]byte, error) { return marshalValue(orEmpty(ev.InputData)) }},
		{"output_data", func() ([]byte, error) { return marshalValue(orEmpty(ev.OutputData)) }},
		{"parent_facto_id", func() ([]byte, error) { return marshalOptionalString(ev.ParentFactoID) }},
		{"prev_hash", func() ([]byte, error) { return marshalString(ev.PrevHash) }},
		{"session_id", func() ([]byte, error) { return marshalString(ev.SessionID) }},
		{"started_at", func() ([]byte, error) { return marshalInt64(ev.StartedAt) }},
		{"status", func() ([]byte, error) { return marshalString(ev.Status) }},
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		b, err := f.fn()
		if err != nil {
			return nil, &CanonicalizationError{Field: f.key, Err: err}
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(f.key)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func orEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func marshalExecutionMeta(m *ExecutionMeta) ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}

	type field struct {
		key string
		fn  func() ([]byte, error)
	}
	fields := []field{
		{"model_id", func() ([]byte, error) { return marshalOptionalString(m.ModelID) }},
		{"seed", func() ([]byte, error) { return marshalOptionalInt64(m.Seed) }},
		{"sdk_version", func() ([]byte, error) { return marshalOptionalString(m.SDKVersion) }},
		{"temperature", func() ([]byte, error) { return marshalOptionalFloat(m.Temperature) }},
		{"tool_calls", func() ([]byte, error) { return marshalToolCalls(m.ToolCalls) }},
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		b, err := f.fn()
		if err != nil {
			return nil, fmt.Errorf("execution_meta.%s: %w", f.key, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(f.key)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalToolCalls(tc []map[string]interface{}) ([]byte, error) {
	if tc == nil {
		return []byte("null"), nil
	}
	arr := make([]interface{}, len(tc))
	for i, e := range tc {
		arr[i] = e
	}
	return marshalSlice(arr)
}

func marshalOptionalString(s *string) ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return marshalString(*s)
}

func marshalOptionalInt64(i *int64) ([]byte, error) {
	if i == nil {
		return []byte("null"), nil
	}
	return marshalInt64(*i)
}

func marshalOptionalFloat(f *float64) ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	return marshalFloat(*f)
}

func marshalInt64(i int64) ([]byte, error) {
	return []byte(strconv.FormatInt(i, 10)), nil
}

// marshalValue serializes an arbitrary value found inside input_data,
// output_data, or a tool_calls entry. It accepts both native Go values
// (int, float64, map[string]interface{}, ...) built directly by an SDK
// caller and json.Number values produced by decoding a wire bundle with
// json.Decoder.UseNumber() — the latter path is what protects large
// integers embedded in a re-parsed evidence bundle from a silent float64
// round-trip during verification.
func marshalValue(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if t {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case string:
		return marshalString(t)
	case json.Number:
		return []byte(t.String()), nil
	case int:
		return marshalInt64(int64(t))
	case int32:
		return marshalInt64(int64(t))
	case int64:
		return marshalInt64(t)
	case uint64:
		return []byte(strconv.FormatUint(t, 10)), nil
	case float64:
		return marshalFloat(t)
	case map[string]interface{}:
		return marshalMap(t)
	case []interface{}:
		return marshalSlice(t)
	case []map[string]interface{}:
		return marshalToolCalls(t)
	default:
		return nil, fmt.Errorf("value of type %T is not JSON-representable", v)
	}
}

func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// marshalFloat formats a float64 as an integer literal when it is
// semantically integral (nanosecond timestamps and similar values must
// never be emitted in floating form), and as a decimal otherwise.
func marshalFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%v is not finite", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return marshalInt64(int64(f))
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

func marshalMap(m map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalString(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalValue(m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalSlice(s []interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalValue(e)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// DecodeJSONPreservingNumbers parses data the way the verifier must: any
// embedded JSON number decodes to json.Number instead of float64, so a
// value inside input_data/output_data round-trips through CanonicalBytes
// with its original digit string intact.
func DecodeJSONPreservingNumbers(data []byte, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

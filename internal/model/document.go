package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Member is one key/value pair of a JSON object
type Member struct {
	Key   string
	Value any
}

// Object is a JSON object that keeps member order.
// Values are Object, []any, json.Number, string, bool or nil.
type Object []Member

// Get returns the value stored under key
func (o Object) Get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// Set replaces the value under key in place, or appends a new member
func (o *Object) Set(key string, value any) {
	for i := range *o {
		if (*o)[i].Key == key {
			(*o)[i].Value = value
			return
		}
	}
	*o = append(*o, Member{Key: key, Value: value})
}

// Clone returns a shallow copy of the object
func (o Object) Clone() Object {
	c := make(Object, len(o))
	copy(c, o)
	return c
}

// MarshalJSON writes the members in order
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(m.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", m.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, rejecting any other root value
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := DecodeJSON(data)
	if err != nil {
		return err
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", KindOf(v))
	}
	*o = obj
	return nil
}

// Document is the structured output of the text-generation stage:
// country -> year -> record, in the order the service emitted them.
type Document struct {
	Countries Object
}

// Len returns the number of top-level country entries
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Countries)
}

// MarshalJSON renders the document as its country object
func (d Document) MarshalJSON() ([]byte, error) {
	if d.Countries == nil {
		return []byte("{}"), nil
	}
	return d.Countries.MarshalJSON()
}

// ParseDocument decodes a structured document. A payload that is not JSON,
// or whose root is not an object, is a *SchemaViolationError.
func ParseDocument(data []byte) (*Document, error) {
	v, err := DecodeJSON(data)
	if err != nil {
		return nil, &SchemaViolationError{Reason: "payload is not valid JSON", Err: err}
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, &SchemaViolationError{Reason: fmt.Sprintf("root is %s, expected object", KindOf(v))}
	}
	return &Document{Countries: obj}, nil
}

// DecodeJSON decodes a single JSON value keeping object member order.
// Numbers are returned as json.Number. Duplicate keys keep the first
// position and the last value.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errors.New("unexpected data after top-level value")
		}
		return nil, err
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := Object{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key is %T", keyTok)
			}
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			obj.Set(key, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil

	case '[':
		arr := []any{}
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}

	return nil, fmt.Errorf("unexpected delimiter %q", delim)
}

// KindOf names the JSON kind of a decoded value
func KindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case Object:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number, float64, int, int64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

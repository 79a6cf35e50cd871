package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind — закрытый набор типов значений в params и в условиях правил.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	// KindComposite — вложенный объект или массив. Участвует только в eq/neq
	// и никогда не равен скалярному значению.
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindComposite:
		return "composite"
	default:
		return "null"
	}
}

// Value — tagged union вместо map[string]interface{}.
// Нулевое значение соответствует null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	raw  json.RawMessage // Только для KindComposite
}

func String(s string) Value { return Value{kind: KindString, str: s} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Null() Value { return Value{} }

// Composite оборачивает уже сериализованный JSON объект/массив.
func Composite(raw json.RawMessage) Value {
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	return Value{kind: KindComposite, raw: cp}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// IsScalar — допустимо ли значение как операнд условия (string | number | bool).
func (v Value) IsScalar() bool {
	return v.kind == KindString || v.kind == KindNumber || v.kind == KindBool
}

// Equal — строгое сравнение: разные типы никогда не равны.
// Составные значения сравниваются побайтно после компактизации JSON.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindComposite:
		return bytes.Equal(compact(v.raw), compact(o.raw))
	default:
		return true
	}
}

// Text возвращает строковое представление значения (для contains/matches и текста причины).
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindComposite:
		return string(compact(v.raw))
	default:
		return "null"
	}
}

func (v Value) String() string { return v.Text() }

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindComposite:
		return compact(v.raw), nil
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("value: empty input")
	}

	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("value: %w", err)
		}
		*v = Bool(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("value: %w", err)
		}
		*v = String(s)
		return nil
	case '{', '[':
		if !json.Valid(data) {
			return fmt.Errorf("value: invalid composite json")
		}
		*v = Composite(data)
		return nil
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("value: %w", err)
		}
		*v = Number(n)
		return nil
	}
}

// UnmarshalYAML позволяет задавать значения условий в seed-файле как обычные скаляры.
func (v *Value) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	val, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// ValueOf конвертирует значения из декодеров (yaml, structpb.AsMap) в Value.
func ValueOf(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case float32:
		return Number(float64(t)), nil
	case float64:
		return Number(t), nil
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return Value{}, fmt.Errorf("value: unsupported type %T: %w", raw, err)
		}
		return Composite(data), nil
	}
}

func compact(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

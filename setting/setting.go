package setting

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrUnknown = errors.New("unknown setting")
	ErrKind    = errors.New("setting type mismatch")
	ErrRange   = errors.New("setting out of range")
)

type Kind int

const (
	KindBool Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindEnum
	KindCallback
)

var kindNames = []string{
	"bool", "int8", "int16", "int32", "int64",
	"uint8", "uint16", "uint32", "uint64",
	"float", "double", "string", "enum", "callback",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) MarshalYAML() (any, error) {
	return k.String(), nil
}

func (k Kind) Numeric() bool {
	return k >= KindInt8 && k <= KindFloat64
}

// Value is one of Bool, Int8..Int64, Uint8..Uint64, Float32, Float64, String,
// Enum or Callback.
type Value interface {
	Kind() Kind
	String() string
}

type (
	Bool    bool
	Int8    int8
	Int16   int16
	Int32   int32
	Int64   int64
	Uint8   uint8
	Uint16  uint16
	Uint32  uint32
	Uint64  uint64
	Float32 float32
	Float64 float64
	String  string
)

// Enum selects one of Captions by index.
type Enum struct {
	Index    int
	Captions []string
}

// Callback is invoked by the plugin that declares it, never by the settings layer.
type Callback func() error

func (Bool) Kind() Kind     { return KindBool }
func (Int8) Kind() Kind     { return KindInt8 }
func (Int16) Kind() Kind    { return KindInt16 }
func (Int32) Kind() Kind    { return KindInt32 }
func (Int64) Kind() Kind    { return KindInt64 }
func (Uint8) Kind() Kind    { return KindUint8 }
func (Uint16) Kind() Kind   { return KindUint16 }
func (Uint32) Kind() Kind   { return KindUint32 }
func (Uint64) Kind() Kind   { return KindUint64 }
func (Float32) Kind() Kind  { return KindFloat32 }
func (Float64) Kind() Kind  { return KindFloat64 }
func (String) Kind() Kind   { return KindString }
func (Enum) Kind() Kind     { return KindEnum }
func (Callback) Kind() Kind { return KindCallback }

func (v Bool) String() string    { return strconv.FormatBool(bool(v)) }
func (v Int8) String() string    { return strconv.FormatInt(int64(v), 10) }
func (v Int16) String() string   { return strconv.FormatInt(int64(v), 10) }
func (v Int32) String() string   { return strconv.FormatInt(int64(v), 10) }
func (v Int64) String() string   { return strconv.FormatInt(int64(v), 10) }
func (v Uint8) String() string   { return strconv.FormatUint(uint64(v), 10) }
func (v Uint16) String() string  { return strconv.FormatUint(uint64(v), 10) }
func (v Uint32) String() string  { return strconv.FormatUint(uint64(v), 10) }
func (v Uint64) String() string  { return strconv.FormatUint(uint64(v), 10) }
func (v Float32) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 32) }
func (v Float64) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v String) String() string  { return string(v) }
func (Callback) String() string  { return "<callback>" }

func (e Enum) String() string {
	if e.Index < 0 || e.Index >= len(e.Captions) {
		return strconv.Itoa(e.Index)
	}
	return e.Captions[e.Index]
}

func (e Enum) MarshalYAML() (any, error) {
	return e.String(), nil
}

func (Callback) MarshalYAML() (any, error) {
	return "<callback>", nil
}

type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type Definition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Kind        Kind   `yaml:"type"`
	Default     Value  `yaml:"default"`
	Range       *Range `yaml:"range,omitempty"`
}

// Captions returns the enum captions carried by the default value.
func (d Definition) Captions() []string {
	if e, ok := d.Default.(Enum); ok {
		return e.Captions
	}
	return nil
}

// Float converts any numeric or bool value to float64.
func Float(v Value) (float64, bool) {
	switch t := v.(type) {
	case Bool:
		if t {
			return 1, true
		}
		return 0, true
	case Int8:
		return float64(t), true
	case Int16:
		return float64(t), true
	case Int32:
		return float64(t), true
	case Int64:
		return float64(t), true
	case Uint8:
		return float64(t), true
	case Uint16:
		return float64(t), true
	case Uint32:
		return float64(t), true
	case Uint64:
		return float64(t), true
	case Float32:
		return float64(t), true
	case Float64:
		return float64(t), true
	case Enum:
		return float64(t.Index), true
	}
	return 0, false
}

var kindLimits = map[Kind][2]float64{
	KindInt8:    {math.MinInt8, math.MaxInt8},
	KindInt16:   {math.MinInt16, math.MaxInt16},
	KindInt32:   {math.MinInt32, math.MaxInt32},
	KindInt64:   {math.MinInt64, math.MaxInt64},
	KindUint8:   {0, math.MaxUint8},
	KindUint16:  {0, math.MaxUint16},
	KindUint32:  {0, math.MaxUint32},
	KindUint64:  {0, math.MaxUint64},
	KindFloat32: {-math.MaxFloat32, math.MaxFloat32},
	KindFloat64: {-math.MaxFloat64, math.MaxFloat64},
}

func fromFloat(k Kind, f float64) Value {
	switch k {
	case KindInt8:
		return Int8(f)
	case KindInt16:
		return Int16(f)
	case KindInt32:
		return Int32(f)
	case KindInt64:
		return Int64(f)
	case KindUint8:
		return Uint8(f)
	case KindUint16:
		return Uint16(f)
	case KindUint32:
		return Uint32(f)
	case KindUint64:
		return Uint64(f)
	case KindFloat32:
		return Float32(f)
	}
	return Float64(f)
}

// Coerce converts v to the kind of d, checking integer width, the optional
// range and enum bounds.
func Coerce(d Definition, v Value) (Value, error) {
	if v == nil {
		return nil, fmt.Errorf("%s: nil value: %w", d.Name, ErrKind)
	}
	switch d.Kind {
	case KindBool, KindString, KindCallback:
		if v.Kind() != d.Kind {
			return nil, fmt.Errorf("%s: expected %s, got %s: %w", d.Name, d.Kind, v.Kind(), ErrKind)
		}
		if cb, ok := v.(Callback); ok && cb == nil {
			return nil, fmt.Errorf("%s: nil callback: %w", d.Name, ErrKind)
		}
		return v, nil
	case KindEnum:
		captions := d.Captions()
		idx := -1
		switch t := v.(type) {
		case Enum:
			idx = t.Index
		case String:
			for i, c := range captions {
				if strings.EqualFold(c, string(t)) {
					idx = i
				}
			}
			if idx < 0 {
				return nil, fmt.Errorf("%s: %q is not one of %v: %w", d.Name, string(t), captions, ErrRange)
			}
		default:
			f, ok := Float(v)
			if !ok || f != math.Trunc(f) {
				return nil, fmt.Errorf("%s: expected enum, got %s: %w", d.Name, v.Kind(), ErrKind)
			}
			idx = int(f)
		}
		if idx < 0 || idx >= len(captions) {
			return nil, fmt.Errorf("%s: index %d outside %d captions: %w", d.Name, idx, len(captions), ErrRange)
		}
		return Enum{Index: idx, Captions: captions}, nil
	}

	f, ok := Float(v)
	if !ok {
		return nil, fmt.Errorf("%s: expected %s, got %s: %w", d.Name, d.Kind, v.Kind(), ErrKind)
	}
	if d.Kind < KindFloat32 && f != math.Trunc(f) {
		return nil, fmt.Errorf("%s: %v is not an integer: %w", d.Name, f, ErrKind)
	}
	lim := kindLimits[d.Kind]
	if f < lim[0] || f > lim[1] {
		return nil, fmt.Errorf("%s: %v does not fit %s: %w", d.Name, f, d.Kind, ErrRange)
	}
	if d.Range != nil && (f < d.Range.Min || f > d.Range.Max) {
		return nil, fmt.Errorf("%s: %v outside [%v, %v]: %w", d.Name, f, d.Range.Min, d.Range.Max, ErrRange)
	}
	if v.Kind() == d.Kind {
		return v, nil
	}
	return fromFloat(d.Kind, f), nil
}

// Parse reads s as a value of d's kind. Callbacks cannot be parsed.
func Parse(d Definition, s string) (Value, error) {
	s = strings.TrimSpace(s)
	var v Value
	switch d.Kind {
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
		v = Bool(b)
	case KindString:
		v = String(s)
	case KindEnum:
		if n, err := strconv.Atoi(s); err == nil {
			v = Int64(n)
		} else {
			v = String(s)
		}
	case KindCallback:
		return nil, fmt.Errorf("%s: callbacks cannot be parsed: %w", d.Name, ErrKind)
	case KindFloat32, KindFloat64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
		v = Float64(f)
	case KindUint64:
		u, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
		if d.Range != nil && (float64(u) < d.Range.Min || float64(u) > d.Range.Max) {
			return nil, fmt.Errorf("%s: %d outside [%v, %v]: %w", d.Name, u, d.Range.Min, d.Range.Max, ErrRange)
		}
		return Uint64(u), nil
	default:
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
		v = Int64(n)
	}
	return Coerce(d, v)
}

// Find returns the definition called name.
func Find(defs []Definition, name string) (Definition, error) {
	for _, d := range defs {
		if d.Name == name {
			return d, nil
		}
	}
	return Definition{}, fmt.Errorf("%q: %w", name, ErrUnknown)
}

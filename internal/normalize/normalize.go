// Package normalize converts raw field values into comparison-stable string
// forms. Two normalized values compare with ordinary equality; the null
// sentinel is distinct from every real value's string form, including "None"
// and the empty string.
package normalize

import (
	"fmt"
	"strconv"
	"time"

	"chronicle/internal/schema"
)

// temporalLayout is the naive UTC form timestamps are compared in. Zone
// metadata is dropped after conversion so equal instants normalize equal.
const temporalLayout = "2006-01-02 15:04:05.999999"

// Value is a normalized field value. The zero Value is the null sentinel.
type Value struct {
	Valid bool
	S     string
}

// Null is the sentinel for absent values.
var Null = Value{}

// String wraps a real string value.
func String(s string) Value { return Value{Valid: true, S: s} }

// Quantity is a unit-carrying measurement value, e.g. 12.5 kg.
type Quantity struct {
	Magnitude float64
	Unit      string
}

func (q Quantity) String() string {
	return strconv.FormatFloat(q.Magnitude, 'f', -1, 64) + " " + q.Unit
}

// UnitConverter converts a quantity into a target unit. The capability is
// optional: without one, measurements fall back to plain stringification.
type UnitConverter interface {
	Convert(q Quantity, unit string) (Quantity, error)
}

// Normalizer applies kind-aware normalization rules.
type Normalizer struct {
	converter UnitConverter
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type Option func(*Normalizer)

// WithUnitConverter enables canonical-unit conversion for measurements.
func WithUnitConverter(c UnitConverter) Option {
	return func(n *Normalizer) { n.converter = c }
}

// Normalize maps a raw value to its comparison form. It never panics:
// unconvertible values degrade to their default string form.
func (n *Normalizer) Normalize(raw any, field schema.Field) Value {
	if raw == nil {
		return Null
	}
	switch field.Kind {
	case schema.KindTemporal:
		return n.normalizeTemporal(raw)
	case schema.KindMeasurement:
		return n.normalizeMeasurement(raw, field)
	default:
		return stringify(raw)
	}
}

func (n *Normalizer) normalizeTemporal(raw any) Value {
	switch t := raw.(type) {
	case time.Time:
		if t.IsZero() {
			return Null
		}
		return String(t.UTC().Format(temporalLayout))
	case *time.Time:
		if t == nil {
			return Null
		}
		return n.normalizeTemporal(*t)
	default:
		// Not actually a timestamp; fall back to plain coercion rather
		// than fail the whole delta.
		return stringify(raw)
	}
}

func (n *Normalizer) normalizeMeasurement(raw any, field schema.Field) Value {
	q, ok := raw.(Quantity)
	if !ok {
		return stringify(raw)
	}
	if n.converter != nil && field.Unit != "" && q.Unit != field.Unit {
		converted, err := n.converter.Convert(q, field.Unit)
		if err == nil {
			return String(converted.String())
		}
		// Reduced-precision path: keep the declared unit as-is.
	}
	return String(q.String())
}

// stringify is the best-effort coercion for scalars and exotic values.
func stringify(raw any) Value {
	switch v := raw.(type) {
	case string:
		return String(v)
	case fmt.Stringer:
		return String(safeStringer(v))
	case []byte:
		return String(string(v))
	case bool:
		return String(strconv.FormatBool(v))
	default:
		return String(fmt.Sprintf("%v", v))
	}
}

// safeStringer guards against String implementations that panic on partial
// values; the default %v form is the degraded fallback.
func safeStringer(v fmt.Stringer) (s string) {
	defer func() {
		if recover() != nil {
			s = fmt.Sprintf("%#v", v)
		}
	}()
	return v.String()
}

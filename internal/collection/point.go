package collection

// PointId is the unsigned 64-bit identifier of a point, unique within a
// collection (spec.md §3).
type PointId = uint64

// PayloadKind tags the scalar variants a payload value may hold. Kept as a
// small closed set rather than an interface{} type switch scattered across
// the tree (spec.md §9's "tagged variants rather than runtime-polymorphic
// objects" applies here too).
type PayloadKind int

const (
	PayloadString PayloadKind = iota
	PayloadInt
	PayloadFloat
	PayloadBool
)

// PayloadValue is a single scalar metadata value attached to a point.
type PayloadValue struct {
	Kind PayloadKind
	Str  string
	Int  int64
	Flt  float64
	Bool bool
}

func StringValue(s string) PayloadValue  { return PayloadValue{Kind: PayloadString, Str: s} }
func IntValue(i int64) PayloadValue      { return PayloadValue{Kind: PayloadInt, Int: i} }
func FloatValue(f float64) PayloadValue  { return PayloadValue{Kind: PayloadFloat, Flt: f} }
func BoolValue(b bool) PayloadValue      { return PayloadValue{Kind: PayloadBool, Bool: b} }

// AsFloat64 returns v as a float64 for range-clause comparisons, and
// whether v is numeric at all (string/bool clauses never satisfy a range).
func (v PayloadValue) AsFloat64() (float64, bool) {
	switch v.Kind {
	case PayloadInt:
		return float64(v.Int), true
	case PayloadFloat:
		return v.Flt, true
	default:
		return 0, false
	}
}

// Equal reports whether two payload values are equal in both kind and
// content, used by match clauses.
func (v PayloadValue) Equal(other PayloadValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case PayloadString:
		return v.Str == other.Str
	case PayloadInt:
		return v.Int == other.Int
	case PayloadFloat:
		return v.Flt == other.Flt
	case PayloadBool:
		return v.Bool == other.Bool
	default:
		return false
	}
}

// Point is the (id, vector, optional payload) triple of spec.md §3. Values
// is never partially mutated: it is replaced wholesale on upsert, and left
// untouched by SetPayload/DeletePayload.
type Point struct {
	ID      PointId
	Values  []float32
	Payload map[string]PayloadValue
}

// Clone returns a deep copy of p so that callers holding a read view cannot
// observe later in-place mutation.
func (p *Point) Clone() *Point {
	if p == nil {
		return nil
	}
	values := make([]float32, len(p.Values))
	copy(values, p.Values)
	var payload map[string]PayloadValue
	if p.Payload != nil {
		payload = make(map[string]PayloadValue, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = v
		}
	}
	return &Point{ID: p.ID, Values: values, Payload: payload}
}

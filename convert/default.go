package convert

import (
	"fmt"
	"reflect"

	"github.com/zclconf/go-cty/cty"
	ctyconvert "github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/flowrt/flowrt/typename"
	"github.com/flowrt/flowrt/value"
)

// DefaultRegistry builds the conversion registry the Env constructor installs
// automatically (spec §4.6, "Default conversions registered by the Env
// constructor"): a complete family across the numeric types {i8, i16, i32,
// i64, u8, u16, u32, u64, f32, f64, int} and a complete family across the
// chrono granularities {ns, µs, ms, s, min, h, day, month, year}.
//
// Both families route their arithmetic through go-cty — the teacher's own
// HCL value/type system (config.InputDefinition.Type, registry's
// gocty.ImpliedType comparisons) repurposed here as the numeric-coercion
// engine instead of a hand-rolled switch over every (from, to) pair.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerNumericFamily(r)
	registerChronoFamily(r)
	return r
}

type numericMember struct {
	name typename.TypeName
	rt   reflect.Type
}

func numericFamily() []numericMember {
	return []numericMember{
		{typename.Of[int8](), reflect.TypeOf(int8(0))},
		{typename.Of[int16](), reflect.TypeOf(int16(0))},
		{typename.Of[int32](), reflect.TypeOf(int32(0))},
		{typename.Of[int64](), reflect.TypeOf(int64(0))},
		{typename.Of[int](), reflect.TypeOf(int(0))},
		{typename.Of[uint8](), reflect.TypeOf(uint8(0))},
		{typename.Of[uint16](), reflect.TypeOf(uint16(0))},
		{typename.Of[uint32](), reflect.TypeOf(uint32(0))},
		{typename.Of[uint64](), reflect.TypeOf(uint64(0))},
		{typename.Of[float32](), reflect.TypeOf(float32(0))},
		{typename.Of[float64](), reflect.TypeOf(float64(0))},
	}
}

func registerNumericFamily(r *Registry) {
	members := numericFamily()
	byBare := make(map[string]reflect.Type, len(members))
	names := make([]typename.TypeName, 0, len(members))
	for _, m := range members {
		byBare[m.name.Bare()] = m.rt
		names = append(names, m.name)
	}
	// cty.Number is the same type on both sides of every pair here; the
	// actual widening/narrowing happens in gocty.FromCtyValue against the
	// destination Go type, so GetConversionUnsafe is exercised but always
	// resolves to a same-type (no-op) conversion step ahead of it.
	identity := ctyconvert.GetConversionUnsafe(cty.Number, cty.Number)
	r.RegisterComplete(names, func(_, to typename.TypeName) ConvertFn {
		toType := byBare[to.Bare()]
		return numericConvertFn(identity, toType)
	})
}

func numericConvertFn(pass ctyconvert.Conversion, toType reflect.Type) ConvertFn {
	return func(v value.Value) (value.Value, error) {
		srcRV := reflect.ValueOf(v.Ptr()).Elem()
		ctyVal, err := gocty.ToCtyValue(srcRV.Interface(), cty.Number)
		if err != nil {
			return nil, fmt.Errorf("numeric conversion: %w", err)
		}
		if pass != nil {
			ctyVal, err = pass(ctyVal)
			if err != nil {
				return nil, fmt.Errorf("numeric conversion: %w", err)
			}
		}
		destPtr := reflect.New(toType)
		if err := gocty.FromCtyValue(ctyVal, destPtr.Interface()); err != nil {
			return nil, fmt.Errorf("numeric conversion: %w", err)
		}
		out := wrapNumeric(destPtr.Elem())
		if out == nil {
			return nil, fmt.Errorf("numeric conversion: unsupported destination kind %s", toType.Kind())
		}
		return out, nil
	}
}

func wrapNumeric(rv reflect.Value) value.Value {
	switch rv.Kind() {
	case reflect.Int8:
		return value.NewOwned(rv.Interface().(int8))
	case reflect.Int16:
		return value.NewOwned(rv.Interface().(int16))
	case reflect.Int32:
		return value.NewOwned(rv.Interface().(int32))
	case reflect.Int64:
		return value.NewOwned(rv.Interface().(int64))
	case reflect.Int:
		return value.NewOwned(rv.Interface().(int))
	case reflect.Uint8:
		return value.NewOwned(rv.Interface().(uint8))
	case reflect.Uint16:
		return value.NewOwned(rv.Interface().(uint16))
	case reflect.Uint32:
		return value.NewOwned(rv.Interface().(uint32))
	case reflect.Uint64:
		return value.NewOwned(rv.Interface().(uint64))
	case reflect.Float32:
		return value.NewOwned(rv.Interface().(float32))
	case reflect.Float64:
		return value.NewOwned(rv.Interface().(float64))
	default:
		return nil
	}
}

// Chrono granularities. Each is a distinct named int64 type so that
// typename.Of gives the conversion registry a distinct TypeName per
// granularity, per the spec's chrono family {ns, µs, ms, s, min, h, day,
// month, year}. Day/month/year use the conventional non-calendar-aware
// approximations (24h/30d/365d) that any duration-arithmetic library in the
// pack would use absent an actual calendar.
type (
	Nanoseconds  int64
	Microseconds int64
	Milliseconds int64
	Seconds      int64
	Minutes      int64
	Hours        int64
	Days         int64
	Months       int64
	Years        int64
)

type chronoMember struct {
	name         typename.TypeName
	rt           reflect.Type
	nanosPerTick int64
}

func chronoFamily() []chronoMember {
	const (
		ns  = int64(1)
		us  = 1000 * ns
		ms  = 1000 * us
		sec = 1000 * ms
		min = 60 * sec
		h   = 60 * min
		day = 24 * h
		mon = 30 * day
		yr  = 365 * day
	)
	return []chronoMember{
		{typename.Of[Nanoseconds](), reflect.TypeOf(Nanoseconds(0)), ns},
		{typename.Of[Microseconds](), reflect.TypeOf(Microseconds(0)), us},
		{typename.Of[Milliseconds](), reflect.TypeOf(Milliseconds(0)), ms},
		{typename.Of[Seconds](), reflect.TypeOf(Seconds(0)), sec},
		{typename.Of[Minutes](), reflect.TypeOf(Minutes(0)), min},
		{typename.Of[Hours](), reflect.TypeOf(Hours(0)), h},
		{typename.Of[Days](), reflect.TypeOf(Days(0)), day},
		{typename.Of[Months](), reflect.TypeOf(Months(0)), mon},
		{typename.Of[Years](), reflect.TypeOf(Years(0)), yr},
	}
}

func registerChronoFamily(r *Registry) {
	members := chronoFamily()
	byBare := make(map[string]chronoMember, len(members))
	names := make([]typename.TypeName, 0, len(members))
	for _, m := range members {
		byBare[m.name.Bare()] = m
		names = append(names, m.name)
	}
	r.RegisterComplete(names, func(from, to typename.TypeName) ConvertFn {
		fromM, toM := byBare[from.Bare()], byBare[to.Bare()]
		return chronoConvertFn(fromM, toM)
	})
}

// chronoConvertFn converts a tick count expressed in fromM's granularity to
// toM's granularity. The arithmetic runs through cty.Number (an arbitrary
// precision decimal) rather than plain int64 multiplication, the same
// unit-arithmetic validation role SPEC_FULL.md assigns go-cty for this
// family — it keeps a nanosecond-scale year-to-nanosecond multiplication
// from silently overflowing a 64-bit integer. A fractional result is
// truncated toward zero (90 seconds convert to 1 minute); a result that does
// not fit in int64 is an error.
func chronoConvertFn(fromM, toM chronoMember) ConvertFn {
	return func(v value.Value) (value.Value, error) {
		srcRV := reflect.ValueOf(v.Ptr()).Elem()
		ticks := srcRV.Convert(reflect.TypeOf(int64(0))).Int()

		nanos := cty.NumberIntVal(ticks).Multiply(cty.NumberIntVal(fromM.nanosPerTick))
		destNum := nanos.Divide(cty.NumberIntVal(toM.nanosPerTick))

		whole, _ := destNum.AsBigFloat().Int(nil)
		if !whole.IsInt64() {
			return nil, fmt.Errorf("duration conversion: %s ticks do not fit in int64", whole)
		}
		out := wrapChrono(toM.rt, whole.Int64())
		if out == nil {
			return nil, fmt.Errorf("duration conversion: unsupported destination type %s", toM.rt)
		}
		return out, nil
	}
}

func wrapChrono(rt reflect.Type, ticks int64) value.Value {
	switch rt {
	case reflect.TypeOf(Nanoseconds(0)):
		return value.NewOwned(Nanoseconds(ticks))
	case reflect.TypeOf(Microseconds(0)):
		return value.NewOwned(Microseconds(ticks))
	case reflect.TypeOf(Milliseconds(0)):
		return value.NewOwned(Milliseconds(ticks))
	case reflect.TypeOf(Seconds(0)):
		return value.NewOwned(Seconds(ticks))
	case reflect.TypeOf(Minutes(0)):
		return value.NewOwned(Minutes(ticks))
	case reflect.TypeOf(Hours(0)):
		return value.NewOwned(Hours(ticks))
	case reflect.TypeOf(Days(0)):
		return value.NewOwned(Days(ticks))
	case reflect.TypeOf(Months(0)):
		return value.NewOwned(Months(ticks))
	case reflect.TypeOf(Years(0)):
		return value.NewOwned(Years(ticks))
	default:
		return nil
	}
}

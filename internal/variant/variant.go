// Package variant implements the typed argument list encoding used
// inside CALL_FUNCTION tank packets.
package variant

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Tag identifies the wire type of a variant entry.
type Tag byte

const (
	TagFloat    Tag = 1
	TagString   Tag = 2
	TagVec2     Tag = 3
	TagVec3     Tag = 4
	TagUnsigned Tag = 5
	TagSigned   Tag = 9
)

// Value is the tagged union of variant payloads. Exactly one field is
// meaningful, selected by Tag.
type Value struct {
	Tag     Tag
	Float   float32
	Str     string
	Vec2    [2]float32
	Vec3    [3]float32
	U32     uint32
	I32     int32
	encoded []byte // original encoded payload bytes, for byte-identical re-emission
}

// Entry pairs a decoded Value with its argument index.
type Entry struct {
	Index byte
	Value Value
}

// List is a decoded variant argument list.
type List struct {
	Entries []Entry
}

// Decode walks buf, bounds-checking every field. Any malformed field —
// truncated read or unrecognized tag — fails the whole buffer.
func Decode(buf []byte) (List, error) {
	if len(buf) < 1 {
		return List{}, fmt.Errorf("variant: empty buffer")
	}
	count := int(buf[0])
	off := 1
	entries := make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		if off+2 > len(buf) {
			return List{}, fmt.Errorf("variant: truncated entry header at offset %d", off)
		}
		index := buf[off]
		tag := Tag(buf[off+1])
		start := off
		off += 2
		var v Value
		v.Tag = tag
		switch tag {
		case TagFloat:
			if off+4 > len(buf) {
				return List{}, fmt.Errorf("variant: truncated float at offset %d", off)
			}
			v.Float = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
			off += 4
		case TagString:
			if off+4 > len(buf) {
				return List{}, fmt.Errorf("variant: truncated string length at offset %d", off)
			}
			n := binary.LittleEndian.Uint32(buf[off : off+4])
			off += 4
			if uint64(off)+uint64(n) > uint64(len(buf)) {
				return List{}, fmt.Errorf("variant: truncated string body at offset %d", off)
			}
			v.Str = string(buf[off : off+int(n)])
			off += int(n)
		case TagVec2:
			if off+8 > len(buf) {
				return List{}, fmt.Errorf("variant: truncated vec2 at offset %d", off)
			}
			v.Vec2[0] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
			v.Vec2[1] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
			off += 8
		case TagVec3:
			if off+12 > len(buf) {
				return List{}, fmt.Errorf("variant: truncated vec3 at offset %d", off)
			}
			for j := 0; j < 3; j++ {
				v.Vec3[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4*j : off+4*j+4]))
			}
			off += 12
		case TagUnsigned:
			if off+4 > len(buf) {
				return List{}, fmt.Errorf("variant: truncated u32 at offset %d", off)
			}
			v.U32 = binary.LittleEndian.Uint32(buf[off : off+4])
			off += 4
		case TagSigned:
			if off+4 > len(buf) {
				return List{}, fmt.Errorf("variant: truncated i32 at offset %d", off)
			}
			v.I32 = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
			off += 4
		default:
			return List{}, fmt.Errorf("variant: unknown tag %d at offset %d", tag, off-1)
		}
		// skip the index byte: Encode writes Entry.Index itself.
		v.encoded = append([]byte(nil), buf[start+1:off]...)
		entries = append(entries, Entry{Index: index, Value: v})
	}
	return List{Entries: entries}, nil
}

// Encode re-emits a decoded list. Unmodified entries are written back
// using their originally captured bytes so re-emission is byte-identical;
// entries whose Value no longer has captured bytes (i.e. were built or
// mutated via New*) are written with the canonical writer.
func Encode(l List) []byte {
	out := make([]byte, 1, 16)
	out[0] = byte(len(l.Entries))
	for _, e := range l.Entries {
		if e.Value.encoded != nil {
			out = append(out, e.Index)
			out = append(out, e.Value.encoded...)
			continue
		}
		out = append(out, e.Index, byte(e.Value.Tag))
		out = append(out, canonicalPayload(e.Value)...)
	}
	return out
}

func canonicalPayload(v Value) []byte {
	switch v.Tag {
	case TagFloat:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(v.Float))
		return b
	case TagString:
		b := make([]byte, 4+len(v.Str))
		binary.LittleEndian.PutUint32(b, uint32(len(v.Str)))
		copy(b[4:], v.Str)
		return b
	case TagVec2:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(v.Vec2[0]))
		binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(v.Vec2[1]))
		return b
	case TagVec3:
		b := make([]byte, 12)
		for i := 0; i < 3; i++ {
			binary.LittleEndian.PutUint32(b[4*i:4*i+4], math.Float32bits(v.Vec3[i]))
		}
		return b
	case TagUnsigned:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v.U32)
		return b
	case TagSigned:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v.I32))
		return b
	default:
		return nil
	}
}

// NewString builds a value that will be re-emitted via the canonical
// writer (its Encode entry carries no captured original bytes).
func NewString(s string) Value   { return Value{Tag: TagString, Str: s} }
func NewFloat(f float32) Value   { return Value{Tag: TagFloat, Float: f} }
func NewUnsigned(u uint32) Value { return Value{Tag: TagUnsigned, U32: u} }
func NewSigned(i int32) Value    { return Value{Tag: TagSigned, I32: i} }
func NewVec2(x, y float32) Value { return Value{Tag: TagVec2, Vec2: [2]float32{x, y}} }
func NewVec3(x, y, z float32) Value {
	return Value{Tag: TagVec3, Vec3: [3]float32{x, y, z}}
}

// FromAny auto-selects a wire tag for a dynamically typed argument per
// the coercion rules: strings become STRING; integers in [0, 2^32-1]
// become UNSIGNED; integers in [-2^31, 2^31-1] not already matched by
// unsigned become SIGNED; other finite numbers become FLOAT; non-finite
// or out-of-range numbers are stringified into STRING; 2/3-element
// numeric lists become VEC2/VEC3; anything else becomes an empty STRING.
func FromAny(arg any) Value {
	switch v := arg.(type) {
	case string:
		return NewString(v)
	case []float32:
		switch len(v) {
		case 2:
			return NewVec2(v[0], v[1])
		case 3:
			return NewVec3(v[0], v[1], v[2])
		default:
			return NewString("")
		}
	case float32:
		return fromFloat64(float64(v))
	case float64:
		return fromFloat64(v)
	case int:
		return fromFloat64(float64(v))
	case int32:
		return fromFloat64(float64(v))
	case int64:
		return fromFloat64(float64(v))
	case uint32:
		return NewUnsigned(v)
	default:
		return NewString("")
	}
}

// Build constructs a List from a plain argument slice, auto-tagging each
// element with FromAny and assigning sequential indices starting at 0.
func Build(args []any) List {
	entries := make([]Entry, len(args))
	for i, a := range args {
		entries[i] = Entry{Index: byte(i), Value: FromAny(a)}
	}
	return List{Entries: entries}
}

// Get returns the Value at the given argument index, if present.
func (l List) Get(index byte) (Value, bool) {
	for _, e := range l.Entries {
		if e.Index == index {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the Value at index, or appends a new entry if absent.
// The replacement value carries no captured original bytes, so it is
// always re-emitted via the canonical writer.
func (l *List) Set(index byte, v Value) {
	for i := range l.Entries {
		if l.Entries[i].Index == index {
			v.encoded = nil
			l.Entries[i].Value = v
			return
		}
	}
	l.Entries = append(l.Entries, Entry{Index: index, Value: v})
}

func fromFloat64(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return NewString(fmt.Sprintf("%v", f))
	}
	if f == math.Trunc(f) {
		switch {
		case f >= 0 && f <= math.MaxUint32:
			return NewUnsigned(uint32(f))
		case f >= math.MinInt32 && f <= math.MaxInt32:
			return NewSigned(int32(f))
		default:
			// integer-valued but outside both wire-integer ranges
			return NewString(fmt.Sprintf("%v", f))
		}
	}
	return NewFloat(float32(f))
}

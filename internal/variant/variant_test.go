package variant

import (
	"math"
	"testing"
)

func encodeOne(index byte, v Value) []byte {
	l := List{Entries: []Entry{{Index: index, Value: v}}}
	return Encode(l)
}

func TestRoundTripAllTypes(t *testing.T) {
	cases := []Value{
		NewFloat(3.5),
		NewString("hello world"),
		NewVec2(1.5, -2.5),
		NewVec3(1, 2, 3),
		NewUnsigned(4294967295),
		NewSigned(-123456),
	}
	for _, v := range cases {
		buf := encodeOne(0, v)
		decoded, err := Decode(buf)
		if err != nil {
			t.Fatalf("decode failed for tag %d: %v", v.Tag, err)
		}
		if len(decoded.Entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(decoded.Entries))
		}
		got := decoded.Entries[0].Value
		if got.Tag != v.Tag {
			t.Fatalf("tag mismatch: got %d want %d", got.Tag, v.Tag)
		}
		switch v.Tag {
		case TagFloat:
			if got.Float != v.Float {
				t.Fatalf("float mismatch: got %v want %v", got.Float, v.Float)
			}
		case TagString:
			if got.Str != v.Str {
				t.Fatalf("string mismatch: got %q want %q", got.Str, v.Str)
			}
		case TagVec2:
			if got.Vec2 != v.Vec2 {
				t.Fatalf("vec2 mismatch: got %v want %v", got.Vec2, v.Vec2)
			}
		case TagVec3:
			if got.Vec3 != v.Vec3 {
				t.Fatalf("vec3 mismatch: got %v want %v", got.Vec3, v.Vec3)
			}
		case TagUnsigned:
			if got.U32 != v.U32 {
				t.Fatalf("u32 mismatch: got %v want %v", got.U32, v.U32)
			}
		case TagSigned:
			if got.I32 != v.I32 {
				t.Fatalf("i32 mismatch: got %v want %v", got.I32, v.I32)
			}
		}
	}
}

func TestDecodeUnknownTagFailsWholeBuffer(t *testing.T) {
	buf := []byte{1, 0, 200, 1, 2, 3, 4}
	if _, err := Decode(buf); err == nil {
		t.Fatalf("expected error for unknown tag")
	}
}

func TestDecodeTruncatedFailsWholeBuffer(t *testing.T) {
	buf := []byte{1, 0, byte(TagUnsigned), 1, 2}
	if _, err := Decode(buf); err == nil {
		t.Fatalf("expected error for truncated entry")
	}
}

func TestUnmodifiedEntryReEmitsByteIdentical(t *testing.T) {
	original := []byte{1, 3, byte(TagString), 5, 0, 0, 0, 'h', 'e', 'l', 'l', 'o'}
	decoded, err := Decode(original)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	reEncoded := Encode(decoded)
	if string(reEncoded) != string(original) {
		t.Fatalf("re-emission not byte identical: got %v want %v", reEncoded, original)
	}
}

func TestFromAnyTypeSelection(t *testing.T) {
	if v := FromAny(uint32(4294967295)); v.Tag != TagUnsigned {
		t.Fatalf("expected unsigned, got tag %d", v.Tag)
	}
	if v := FromAny(-1); v.Tag != TagSigned {
		t.Fatalf("expected signed, got tag %d", v.Tag)
	}
	if v := FromAny(math.Inf(1)); v.Tag != TagString {
		t.Fatalf("expected string for +Inf, got tag %d", v.Tag)
	}
	if v := FromAny(math.NaN()); v.Tag != TagString {
		t.Fatalf("expected string for NaN, got tag %d", v.Tag)
	}
	if v := FromAny(3.5); v.Tag != TagFloat {
		t.Fatalf("expected float, got tag %d", v.Tag)
	}
	if v := FromAny("hi"); v.Tag != TagString || v.Str != "hi" {
		t.Fatalf("expected string 'hi', got %+v", v)
	}
	if v := FromAny([]float32{1, 2}); v.Tag != TagVec2 {
		t.Fatalf("expected vec2, got tag %d", v.Tag)
	}
	if v := FromAny([]float32{1, 2, 3}); v.Tag != TagVec3 {
		t.Fatalf("expected vec3, got tag %d", v.Tag)
	}
}

func TestListGetSet(t *testing.T) {
	l := Build([]any{"OnChangeSkin", uint32(4294967295)})
	v, ok := l.Get(1)
	if !ok || v.Tag != TagUnsigned || v.U32 != 4294967295 {
		t.Fatalf("unexpected value at index 1: %+v ok=%v", v, ok)
	}
	l.Set(1, NewUnsigned(99))
	v2, _ := l.Get(1)
	if v2.U32 != 99 {
		t.Fatalf("set did not replace value: %+v", v2)
	}
}

// Package tape implements the checkpoint byte stream every operator in
// pkg/pipeline reads and writes its resumption state through. A Tape is a
// typed, append-only log with a read cursor: writes always append at the
// end, reads always consume from the current position, and Rewind resets
// the cursor to the start without discarding what was written.
package tape

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/askiada/databrew/pkg/pipeline/record"
)

// ErrExhausted is returned when a read is attempted past the end of the tape.
var ErrExhausted = errors.New("tape: exhausted")

// ErrTypeMismatch is returned when the tag at the head of the tape does not
// match the type being read.
var ErrTypeMismatch = errors.New("tape: type mismatch")

type tag byte

const (
	tagInt64 tag = iota + 1
	tagFloat64
	tagString
	tagBytes
	tagList
	tagDict
	tagNone
)

// Tape is a typed append/read cursor over a byte buffer.
type Tape struct {
	buf []byte
	pos int
}

// New returns an empty tape ready for writing.
func New() *Tape {
	return &Tape{}
}

// FromBytes wraps a previously recorded byte stream for reading. The cursor
// starts at position zero.
func FromBytes(b []byte) *Tape {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &Tape{buf: cp}
}

// Bytes returns a copy of the full recorded stream, independent of the
// current read cursor.
func (t *Tape) Bytes() []byte {
	cp := make([]byte, len(t.buf))
	copy(cp, t.buf)
	return cp
}

// Rewind resets the read cursor to the start of the tape.
func (t *Tape) Rewind() {
	t.pos = 0
}

// Primitive is the set of scalar types a Tape can carry via WritePrimitive
// and ReadPrimitive.
type Primitive interface {
	int64 | float64 | string
}

// WritePrimitive appends a self-describing scalar value.
func WritePrimitive[T Primitive](t *Tape, v T) {
	switch x := any(v).(type) {
	case int64:
		t.writeTag(tagInt64)
		t.writeInt64(x)
	case float64:
		t.writeTag(tagFloat64)
		t.writeFloat64(x)
	case string:
		t.writeTag(tagString)
		t.writeString(x)
	}
}

// ReadPrimitive consumes the next scalar value, failing with ErrTypeMismatch
// if the head of the tape does not carry T's tag and ErrExhausted if the
// tape has no more data.
func ReadPrimitive[T Primitive](t *Tape) (T, error) {
	var zero T
	want, err := wantTag[T]()
	if err != nil {
		return zero, err
	}

	got, err := t.peekTag()
	if err != nil {
		return zero, err
	}
	if got != want {
		return zero, ErrTypeMismatch
	}
	t.pos++

	switch any(zero).(type) {
	case int64:
		v, err := t.readInt64()
		if err != nil {
			return zero, err
		}
		return any(v).(T), nil
	case float64:
		v, err := t.readFloat64()
		if err != nil {
			return zero, err
		}
		return any(v).(T), nil
	case string:
		v, err := t.readString()
		if err != nil {
			return zero, err
		}
		return any(v).(T), nil
	}
	return zero, errors.New("tape: unsupported primitive type")
}

func wantTag[T Primitive]() (tag, error) {
	var zero T
	switch any(zero).(type) {
	case int64:
		return tagInt64, nil
	case float64:
		return tagFloat64, nil
	case string:
		return tagString, nil
	default:
		return 0, errors.New("tape: unsupported primitive type")
	}
}

// WriteBytesValue appends a byte-string value.
func (t *Tape) WriteBytesValue(v []byte) {
	t.writeTag(tagBytes)
	t.writeBytes(v)
}

// ReadBytesValue consumes the next byte-string value.
func (t *Tape) ReadBytesValue() ([]byte, error) {
	got, err := t.peekTag()
	if err != nil {
		return nil, err
	}
	if got != tagBytes {
		return nil, ErrTypeMismatch
	}
	t.pos++
	return t.readBytes()
}

// WriteBool appends a boolean, encoded as a tagged int64 0/1.
func (t *Tape) WriteBool(v bool) {
	if v {
		WritePrimitive[int64](t, 1)
	} else {
		WritePrimitive[int64](t, 0)
	}
}

// ReadBool consumes a boolean written with WriteBool.
func (t *Tape) ReadBool() (bool, error) {
	v, err := ReadPrimitive[int64](t)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// WriteNone appends a sentinel meaning "absent", used by operators that
// checkpoint an optional sub-position (yield_from's idle sub-pipeline).
func (t *Tape) WriteNone() {
	t.writeTag(tagNone)
}

// PeekIsNone reports, without consuming, whether the next value is the None
// sentinel written by WriteNone.
func (t *Tape) PeekIsNone() (bool, error) {
	got, err := t.peekTag()
	if err != nil {
		return false, err
	}
	return got == tagNone, nil
}

// ConsumeNone consumes a None sentinel written by WriteNone.
func (t *Tape) ConsumeNone() error {
	got, err := t.peekTag()
	if err != nil {
		return err
	}
	if got != tagNone {
		return ErrTypeMismatch
	}
	t.pos++
	return nil
}

// WriteRecord appends a full record.Value, recursing into lists and dicts.
func (t *Tape) WriteRecord(v record.Value) {
	switch v.Kind() {
	case record.KindInt64:
		i, _ := v.AsInt64()
		WritePrimitive(t, i)
	case record.KindFloat64:
		f, _ := v.AsFloat64()
		WritePrimitive(t, f)
	case record.KindString:
		s, _ := v.AsString()
		WritePrimitive(t, s)
	case record.KindBytes:
		b, _ := v.AsBytes()
		t.WriteBytesValue(b)
	case record.KindList:
		list, _ := v.AsList()
		t.writeTag(tagList)
		t.writeInt64(int64(len(list)))
		for _, item := range list {
			t.WriteRecord(item)
		}
	case record.KindDict:
		dict, _ := v.AsDict()
		t.writeTag(tagDict)
		t.writeInt64(int64(len(dict)))
		for k, item := range dict {
			t.writeString(k)
			t.WriteRecord(item)
		}
	default:
		t.writeTag(tagNone)
	}
}

// ReadRecord consumes a full record.Value written by WriteRecord.
func (t *Tape) ReadRecord() (record.Value, error) {
	got, err := t.peekTag()
	if err != nil {
		return record.Value{}, err
	}

	switch got {
	case tagInt64:
		v, err := ReadPrimitive[int64](t)
		return record.Int64(v), err
	case tagFloat64:
		v, err := ReadPrimitive[float64](t)
		return record.Float64(v), err
	case tagString:
		v, err := ReadPrimitive[string](t)
		return record.String(v), err
	case tagBytes:
		v, err := t.ReadBytesValue()
		return record.Bytes(v), err
	case tagList:
		t.pos++
		n, err := t.readInt64()
		if err != nil {
			return record.Value{}, err
		}
		items := make([]record.Value, 0, n)
		for i := int64(0); i < n; i++ {
			item, err := t.ReadRecord()
			if err != nil {
				return record.Value{}, err
			}
			items = append(items, item)
		}
		return record.List(items), nil
	case tagDict:
		t.pos++
		n, err := t.readInt64()
		if err != nil {
			return record.Value{}, err
		}
		m := make(map[string]record.Value, n)
		for i := int64(0); i < n; i++ {
			k, err := t.readString()
			if err != nil {
				return record.Value{}, err
			}
			v, err := t.ReadRecord()
			if err != nil {
				return record.Value{}, err
			}
			m[k] = v
		}
		return record.Dict(m), nil
	case tagNone:
		t.pos++
		return record.Value{}, nil
	default:
		return record.Value{}, ErrTypeMismatch
	}
}

// WriteRecordList appends an ordered list of records as a length-prefixed
// run of WriteRecord calls. It is the shape used by bucketing/shuffling
// operators to checkpoint the records they hold in memory.
func (t *Tape) WriteRecordList(vs []record.Value) {
	WritePrimitive[int64](t, int64(len(vs)))
	for _, v := range vs {
		t.WriteRecord(v)
	}
}

// ReadRecordList consumes a list written by WriteRecordList.
func (t *Tape) ReadRecordList() ([]record.Value, error) {
	n, err := ReadPrimitive[int64](t)
	if err != nil {
		return nil, err
	}
	out := make([]record.Value, 0, n)
	for i := int64(0); i < n; i++ {
		v, err := t.ReadRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (t *Tape) writeTag(tg tag) {
	t.buf = append(t.buf, byte(tg))
}

func (t *Tape) peekTag() (tag, error) {
	if t.pos >= len(t.buf) {
		return 0, ErrExhausted
	}
	return tag(t.buf[t.pos]), nil
}

func (t *Tape) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	t.buf = append(t.buf, b[:]...)
}

func (t *Tape) readInt64() (int64, error) {
	if t.pos+8 > len(t.buf) {
		return 0, ErrExhausted
	}
	v := int64(binary.BigEndian.Uint64(t.buf[t.pos : t.pos+8]))
	t.pos += 8
	return v, nil
}

func (t *Tape) writeFloat64(v float64) {
	t.writeInt64(int64(math.Float64bits(v)))
}

func (t *Tape) readFloat64() (float64, error) {
	bits, err := t.readInt64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(bits)), nil
}

func (t *Tape) writeString(v string) {
	t.writeBytes([]byte(v))
}

func (t *Tape) readString() (string, error) {
	b, err := t.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (t *Tape) writeBytes(v []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
	t.buf = append(t.buf, lenBuf[:]...)
	t.buf = append(t.buf, v...)
}

func (t *Tape) readBytes() ([]byte, error) {
	if t.pos+4 > len(t.buf) {
		return nil, ErrExhausted
	}
	n := binary.BigEndian.Uint32(t.buf[t.pos : t.pos+4])
	t.pos += 4
	if t.pos+int(n) > len(t.buf) {
		return nil, ErrExhausted
	}
	v := make([]byte, n)
	copy(v, t.buf[t.pos:t.pos+int(n)])
	t.pos += int(n)
	return v, nil
}

package network

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

// Map is an ordered, string-keyed, string-valued map: the wire format
// used for launch parameters, PMI key/value pairs, and ring addresses.
// Insertion order is preserved and is significant on the wire.
type Map struct {
	keys   []string
	values map[string]string
}

// NewMap returns an empty ordered map.
func NewMap() *Map {
	return &Map{values: make(map[string]string)}
}

// Set inserts or updates key. Updating an existing key does not change
// its position in the insertion order.
func (m *Map) Set(key, value string) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key, or "" and false if absent.
func (m *Map) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// GetDefault returns the value for key, or def if absent.
func (m *Map) GetDefault(key, def string) string {
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Merge copies every key/value from other into m, in other's insertion
// order, overwriting any key m already has.
func (m *Map) Merge(other *Map) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		m.Set(k, other.values[k])
	}
}

// Clone returns an independent copy of m, preserving key order - used
// when propagating a parent's parameter map to a child.
func (m *Map) Clone() *Map {
	out := NewMap()
	for _, k := range m.keys {
		out.Set(k, m.values[k])
	}
	return out
}

var byteOrder = binary.BigEndian

// WriteString frames s as an 8-byte big-endian length (including the
// terminating NUL) followed by s and a trailing NUL.
func WriteString(ch Channel, s string) error {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	buf[len(s)] = 0

	length := make([]byte, 8)
	byteOrder.PutUint64(length, uint64(len(buf)))
	if err := ch.Write(length); err != nil {
		return err
	}
	return ch.Write(buf)
}

// ReadString reads a framed string written by WriteString, returning a
// freshly allocated string without its terminating NUL.
func ReadString(ch Channel) (string, error) {
	length := make([]byte, 8)
	if err := ch.Read(length); err != nil {
		return "", err
	}
	l := byteOrder.Uint64(length)
	if l == 0 {
		return "", wrapErr("read-string", xerrors.New("zero-length string frame"))
	}

	buf := make([]byte, l)
	if err := ch.Read(buf); err != nil {
		return "", err
	}
	if buf[l-1] != 0 {
		return "", wrapErr("read-string", xerrors.New("string frame missing terminating NUL"))
	}
	return string(buf[:l-1]), nil
}

// WriteMap frames m as an 8-byte big-endian byte length followed by the
// packed (key, value) pairs, terminated by an empty key.
// Pairs are packed in m's insertion order.
func WriteMap(ch Channel, m *Map) error {
	packed := packMap(m)

	length := make([]byte, 8)
	byteOrder.PutUint64(length, uint64(len(packed)))
	if err := ch.Write(length); err != nil {
		return err
	}
	if len(packed) == 0 {
		return nil
	}
	return ch.Write(packed)
}

func packMap(m *Map) []byte {
	var packed []byte
	if m != nil {
		for _, k := range m.keys {
			packed = append(packed, packString(k)...)
			packed = append(packed, packString(m.values[k])...)
		}
	}
	packed = append(packed, packString("")...)
	return packed
}

func packString(s string) []byte {
	buf := make([]byte, 8, 8+len(s)+1)
	byteOrder.PutUint64(buf, uint64(len(s)+1))
	buf = append(buf, s...)
	buf = append(buf, 0)
	return buf
}

// ReadMap reads a framed map written by WriteMap into a new Map,
// preserving wire order.
func ReadMap(ch Channel) (*Map, error) {
	length := make([]byte, 8)
	if err := ch.Read(length); err != nil {
		return nil, err
	}
	b := byteOrder.Uint64(length)

	buf := make([]byte, b)
	if b > 0 {
		if err := ch.Read(buf); err != nil {
			return nil, err
		}
	}
	return unpackMap(buf)
}

func unpackMap(buf []byte) (*Map, error) {
	m := NewMap()
	for {
		key, rest, err := unpackString(buf)
		if err != nil {
			return nil, err
		}
		buf = rest
		if key == "" {
			return m, nil
		}

		value, rest, err := unpackString(buf)
		if err != nil {
			return nil, err
		}
		buf = rest
		m.Set(key, value)
	}
}

func unpackString(buf []byte) (string, []byte, error) {
	if len(buf) < 8 {
		return "", nil, wrapErr("unpack-string", xerrors.New("truncated map: missing length"))
	}
	l := byteOrder.Uint64(buf[:8])
	buf = buf[8:]
	if l == 0 {
		return "", nil, wrapErr("unpack-string", xerrors.New("malformed map: zero-length string"))
	}
	if uint64(len(buf)) < l {
		return "", nil, wrapErr("unpack-string", xerrors.New("truncated map: short value"))
	}
	if buf[l-1] != 0 {
		return "", nil, wrapErr("unpack-string", xerrors.New("malformed map: missing terminating NUL"))
	}
	return string(buf[:l-1]), buf[l:], nil
}

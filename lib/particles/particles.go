/*
package particles contains the per-tile particle store: Real particles owned
by a tile, the Ghost copies received from neighboring tiles, and the generic
named fields which carry each particle's payload.
*/
package particles

/* This file contains functions for managing particles and their fields. */

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Particles maps the name of each field (e.g. 'vel', 'test_id', etc.) to a
// Field.
type Particles map[string]Field

// FieldSpec gives the name and type code of a field. Type codes are "u64",
// "f64", and "v64".
type FieldSpec struct {
	Name, Type string
}

// Schema is the ordered list of fields carried by every particle. The order
// is also the order in which fields are written to the wire.
type Schema []FieldSpec

// Field is a generic interface around a named array of per-particle values.
type Field interface {
	// Name returns the name of the field.
	Name() string
	// Type returns the field's type code.
	Type() string
	// Len returns the length of the underlying array.
	Len() int
	// Data returns the underlying array as an interface{}.
	Data() interface{}
	// Transfer transfers data from the Field to the appropriately named field
	// in dest. Particles are transfer from the indices 'from' to the indices
	// 'to'. These indices are passed as arrays to amortize the cost of error
	// handling and type conversion.
	Transfer(dest Particles, from, to []int) error
	// CreateDestination creates an output field in p with the specified size
	// that has the correct name and type.
	CreateDestination(p Particles, n int)

	// Grow appends n zero values.
	Grow(n int)
	// Truncate shortens the array to n elements.
	Truncate(n int)
	// Remove removes element i, preserving the order of the others.
	Remove(i int)

	// Size returns the number of bytes needed to encode one element.
	Size() int
	// AppendBytes appends the little-endian encoding of element i to buf.
	AppendBytes(buf []byte, i int) []byte
	// DecodeAppend decodes one element from the front of buf, appends it to
	// the field, and returns the rest of buf.
	DecodeAppend(buf []byte) ([]byte, error)
}

// Type assertions
var (
	_ Field = &Uint64{}
	_ Field = &Float64{}
	_ Field = &Vec64{}
)

// NewField creates an empty field with the name and type given by spec.
func NewField(spec FieldSpec, n int) (Field, error) {
	switch spec.Type {
	case "u64":
		return NewUint64(spec.Name, make([]uint64, n)), nil
	case "f64":
		return NewFloat64(spec.Name, make([]float64, n)), nil
	case "v64":
		return NewVec64(spec.Name, make([][3]float64, n)), nil
	}
	return nil, fmt.Errorf("Field '%s' has type '%s', but only 'u64', "+
		"'f64', and 'v64' are supported.", spec.Name, spec.Type)
}

// Size returns the number of bytes needed to encode one particle's fields.
func (s Schema) Size() int {
	n := 0
	for _, f := range s {
		switch f.Type {
		case "u64", "f64":
			n += 8
		case "v64":
			n += 24
		}
	}
	return n
}

// Check returns an error if any field has an unsupported type or if two
// fields share a name.
func (s Schema) Check() error {
	names := map[string]bool{}
	for _, f := range s {
		if _, err := NewField(f, 0); err != nil {
			return err
		}
		if names[f.Name] {
			return fmt.Errorf("Field '%s' is listed twice.", f.Name)
		}
		names[f.Name] = true
	}
	return nil
}

func shortBuffer(name string, n, need int) error {
	return fmt.Errorf("Decoding field '%s' needs %d bytes, but only %d "+
		"remain.", name, need, n)
}

func checkIndices(from, to []int) error {
	if len(from) != len(to) {
		return fmt.Errorf("'from' index array has length %d, but 'to' has "+
			"length %d.", len(from), len(to))
	}
	return nil
}

// Uint64 implements the Field interface for []uint64 data. See the Field
// interface for documentation of this struct's methods.
type Uint64 struct {
	name string
	data []uint64
}

// NewUint64 creates a field with a given name assoicated with a given array.
func NewUint64(name string, x []uint64) *Uint64 {
	return &Uint64{name, x}
}

func (x *Uint64) Name() string      { return x.name }
func (x *Uint64) Type() string      { return "u64" }
func (x *Uint64) Len() int          { return len(x.data) }
func (x *Uint64) Data() interface{} { return x.data }
func (x *Uint64) Size() int         { return 8 }

func (x *Uint64) CreateDestination(p Particles, n int) {
	p[x.name] = NewUint64(x.name, make([]uint64, n))
}

func (x *Uint64) Transfer(dest Particles, from, to []int) error {
	destField, ok := dest[x.name]
	if !ok {
		return fmt.Errorf("Destination Particles object does not contain "+
			"the field '%s'.", x.name)
	}

	destData, ok := destField.Data().([]uint64)
	if !ok {
		return fmt.Errorf("Field '%s' in destination Particles object does "+
			"not have []uint64 type, as expected.", x.name)
	}

	if err := checkIndices(from, to); err != nil {
		return err
	}

	for i := range from {
		destData[to[i]] = x.data[from[i]]
	}

	return nil
}

func (x *Uint64) Grow(n int)     { x.data = append(x.data, make([]uint64, n)...) }
func (x *Uint64) Truncate(n int) { x.data = x.data[:n] }
func (x *Uint64) Remove(i int)   { x.data = append(x.data[:i], x.data[i+1:]...) }

func (x *Uint64) AppendBytes(buf []byte, i int) []byte {
	return binary.LittleEndian.AppendUint64(buf, x.data[i])
}

func (x *Uint64) DecodeAppend(buf []byte) ([]byte, error) {
	if len(buf) < 8 {
		return nil, shortBuffer(x.name, len(buf), 8)
	}
	x.data = append(x.data, binary.LittleEndian.Uint64(buf))
	return buf[8:], nil
}

// Float64 implements the Field interface for []float64 data. See the Field
// interface for documentation of this struct's methods.
type Float64 struct {
	name string
	data []float64
}

// NewFloat64 creates a field with a given name assoicated with a given array.
func NewFloat64(name string, x []float64) *Float64 {
	return &Float64{name, x}
}

func (x *Float64) Name() string      { return x.name }
func (x *Float64) Type() string      { return "f64" }
func (x *Float64) Len() int          { return len(x.data) }
func (x *Float64) Data() interface{} { return x.data }
func (x *Float64) Size() int         { return 8 }

func (x *Float64) CreateDestination(p Particles, n int) {
	p[x.name] = NewFloat64(x.name, make([]float64, n))
}

func (x *Float64) Transfer(dest Particles, from, to []int) error {
	destField, ok := dest[x.name]
	if !ok {
		return fmt.Errorf("Destination Particles object does not contain "+
			"the field '%s'.", x.name)
	}

	destData, ok := destField.Data().([]float64)
	if !ok {
		return fmt.Errorf("Field '%s' in destination Particles object does "+
			"not have []float64 type, as expected.", x.name)
	}

	if err := checkIndices(from, to); err != nil {
		return err
	}

	for i := range from {
		destData[to[i]] = x.data[from[i]]
	}

	return nil
}

func (x *Float64) Grow(n int)     { x.data = append(x.data, make([]float64, n)...) }
func (x *Float64) Truncate(n int) { x.data = x.data[:n] }
func (x *Float64) Remove(i int)   { x.data = append(x.data[:i], x.data[i+1:]...) }

func (x *Float64) AppendBytes(buf []byte, i int) []byte {
	return binary.LittleEndian.AppendUint64(buf, math.Float64bits(x.data[i]))
}

func (x *Float64) DecodeAppend(buf []byte) ([]byte, error) {
	if len(buf) < 8 {
		return nil, shortBuffer(x.name, len(buf), 8)
	}
	x.data = append(x.data,
		math.Float64frombits(binary.LittleEndian.Uint64(buf)))
	return buf[8:], nil
}

// Vec64 implements the Field interface for [][3]float64 data. See the Field
// interface for documentation of this struct's methods. Unlike the scalar
// fields, a Vec64 is transferred into a single [][3]float64 destination
// field of the same name.
type Vec64 struct {
	name string
	data [][3]float64
}

// NewVec64 creates a field with a given name assoicated with a given array.
func NewVec64(name string, x [][3]float64) *Vec64 {
	return &Vec64{name, x}
}

func (x *Vec64) Name() string      { return x.name }
func (x *Vec64) Type() string      { return "v64" }
func (x *Vec64) Len() int          { return len(x.data) }
func (x *Vec64) Data() interface{} { return x.data }
func (x *Vec64) Size() int         { return 24 }

func (x *Vec64) CreateDestination(p Particles, n int) {
	p[x.name] = NewVec64(x.name, make([][3]float64, n))
}

func (x *Vec64) Transfer(dest Particles, from, to []int) error {
	destField, ok := dest[x.name]
	if !ok {
		return fmt.Errorf("Destination Particles object does not contain "+
			"the field '%s'.", x.name)
	}

	destData, ok := destField.Data().([][3]float64)
	if !ok {
		return fmt.Errorf("Field '%s' in destination Particles object does "+
			"not have [][3]float64 type, as expected.", x.name)
	}

	if err := checkIndices(from, to); err != nil {
		return err
	}

	for i := range from {
		destData[to[i]] = x.data[from[i]]
	}

	return nil
}

func (x *Vec64) Grow(n int)     { x.data = append(x.data, make([][3]float64, n)...) }
func (x *Vec64) Truncate(n int) { x.data = x.data[:n] }
func (x *Vec64) Remove(i int)   { x.data = append(x.data[:i], x.data[i+1:]...) }

func (x *Vec64) AppendBytes(buf []byte, i int) []byte {
	for dim := 0; dim < 3; dim++ {
		buf = binary.LittleEndian.AppendUint64(buf,
			math.Float64bits(x.data[i][dim]))
	}
	return buf
}

func (x *Vec64) DecodeAppend(buf []byte) ([]byte, error) {
	if len(buf) < 24 {
		return nil, shortBuffer(x.name, len(buf), 24)
	}
	v := [3]float64{}
	for dim := 0; dim < 3; dim++ {
		v[dim] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*dim:]))
	}
	x.data = append(x.data, v)
	return buf[24:], nil
}

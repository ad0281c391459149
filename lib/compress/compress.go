/*
package compress contains the wire format used to move particle records
between execution units, along with optional zstd compression of whole
messages.

Every message starts with a one-byte MethodFlag. The rest of the message,
after decompression, is a sequence of fixed-layout little-endian records:

	kind      uint8
	id        uint64
	srcTile   int32
	srcIndex  int32
	destTile  int32
	shift     [3]int32
	pos       [3]float64
	fields    [fieldSize]byte (Ghost and Migrate records only)

Fields are encoded in schema order (see particles.Schema).
*/
package compress

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/DataDog/zstd"
)

// Kind is the type of a record.
type Kind uint8

const (
	// Ghost records carry a full copy of a Real particle to a tile's halo.
	Ghost Kind = iota + 1
	// Position records refresh the position of an existing Ghost.
	Position
	// Migrate records move a Real particle to a new tile.
	Migrate
	// Check records ask a source tile to confirm a Ghost's id and position.
	Check
	numKinds
)

func (k Kind) String() string {
	switch k {
	case Ghost:
		return "ghost"
	case Position:
		return "position"
	case Migrate:
		return "migrate"
	case Check:
		return "check"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// hasFields returns true if records of this kind carry field data.
func (k Kind) hasFields() bool { return k == Ghost || k == Migrate }

// MethodFlag is a flag representing the method used to compress a message.
type MethodFlag uint8

const (
	NoneFlag MethodFlag = iota
	ZStdFlag
	numMethods
)

// ParseMethod converts a method name, "none" or "zstd", into a MethodFlag.
func ParseMethod(name string) (MethodFlag, error) {
	switch name {
	case "", "none":
		return NoneFlag, nil
	case "zstd":
		return ZStdFlag, nil
	}
	return NoneFlag, fmt.Errorf("Unknown compression method '%s'. Only "+
		"'none' and 'zstd' are supported.", name)
}

const (
	// HeaderSize is the size of a record without its fields.
	HeaderSize = 1 + 8 + 4*3 + 4*3 + 8*3
	// zstdLevel is the compression level used for messages. Messages are
	// compressed once per exchange, so speed matters more than ratio.
	zstdLevel = 1
)

// Record is a single particle record.
type Record struct {
	Kind                        Kind
	ID                          uint64
	SrcTile, SrcIndex, DestTile int
	Shift                       [3]int
	Pos                         [3]float64
	// Fields is the encoded field data of Ghost and Migrate records.
	Fields []byte
}

// Encoder builds a single message out of records.
type Encoder struct {
	method    MethodFlag
	fieldSize int
	n         int
	b, bZStd  []byte
}

// NewEncoder creates an Encoder which compresses with the given method.
// fieldSize is the size of the encoded fields of a single particle.
func NewEncoder(method MethodFlag, fieldSize int) (*Encoder, error) {
	if method >= numMethods {
		return nil, fmt.Errorf("Unknown compression method %d.", method)
	}
	return &Encoder{method: method, fieldSize: fieldSize}, nil
}

// Len returns the number of records added since the last Reset.
func (enc *Encoder) Len() int { return enc.n }

// Reset removes all records.
func (enc *Encoder) Reset() {
	enc.b = enc.b[:0]
	enc.n = 0
}

// Add appends a record to the message.
func (enc *Encoder) Add(r *Record) error {
	if r.Kind == 0 || r.Kind >= numKinds {
		return fmt.Errorf("Cannot encode record with unknown kind %d.",
			uint8(r.Kind))
	}
	if r.Kind.hasFields() && len(r.Fields) != enc.fieldSize {
		return fmt.Errorf("%s record for particle %d has %d bytes of "+
			"fields, but %d were expected.", r.Kind, r.ID, len(r.Fields),
			enc.fieldSize)
	}

	b := enc.b
	le := binary.LittleEndian
	b = append(b, byte(r.Kind))
	b = le.AppendUint64(b, r.ID)
	b = le.AppendUint32(b, uint32(int32(r.SrcTile)))
	b = le.AppendUint32(b, uint32(int32(r.SrcIndex)))
	b = le.AppendUint32(b, uint32(int32(r.DestTile)))
	for i := 0; i < 3; i++ {
		b = le.AppendUint32(b, uint32(int32(r.Shift[i])))
	}
	for i := 0; i < 3; i++ {
		b = le.AppendUint64(b, math.Float64bits(r.Pos[i]))
	}
	if r.Kind.hasFields() {
		b = append(b, r.Fields...)
	}

	enc.b = b
	enc.n++
	return nil
}

// Message returns the encoded message. Empty messages are never compressed.
func (enc *Encoder) Message() ([]byte, error) {
	if len(enc.b) == 0 {
		return []byte{byte(NoneFlag)}, nil
	}

	switch enc.method {
	case NoneFlag:
		out := make([]byte, 1+len(enc.b))
		out[0] = byte(NoneFlag)
		copy(out[1:], enc.b)
		return out, nil
	case ZStdFlag:
		var err error
		enc.bZStd, err = zstd.CompressLevel(enc.bZStd[:0], enc.b, zstdLevel)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 1+len(enc.bZStd))
		out[0] = byte(ZStdFlag)
		copy(out[1:], enc.bZStd)
		return out, nil
	}
	return nil, fmt.Errorf("Unknown compression method %d.", enc.method)
}

// Decoder reads the records of a message.
type Decoder struct {
	fieldSize int
	b         []byte
}

// NewDecoder creates a Decoder for particles with the given encoded field
// size.
func NewDecoder(fieldSize int) *Decoder {
	return &Decoder{fieldSize: fieldSize}
}

// Decode calls fn on every record in msg, in the order they were added. The
// Record and its Fields are reused between calls and must be copied if they
// are kept.
func (dec *Decoder) Decode(msg []byte, fn func(r *Record) error) error {
	if len(msg) == 0 {
		return nil
	}

	var b []byte
	switch MethodFlag(msg[0]) {
	case NoneFlag:
		b = msg[1:]
	case ZStdFlag:
		var err error
		dec.b, err = zstd.Decompress(resizeBytes(dec.b, 0), msg[1:])
		if err != nil {
			return err
		}
		b = dec.b
	default:
		return fmt.Errorf("Message has unknown compression flag %d.", msg[0])
	}

	le := binary.LittleEndian
	r := &Record{}
	for len(b) > 0 {
		if len(b) < HeaderSize {
			return fmt.Errorf("Message ends with a truncated record of %d "+
				"bytes.", len(b))
		}

		r.Kind = Kind(b[0])
		if r.Kind == 0 || r.Kind >= numKinds {
			return fmt.Errorf("Message contains record with unknown kind "+
				"%d.", b[0])
		}
		r.ID = le.Uint64(b[1:])
		r.SrcTile = int(int32(le.Uint32(b[9:])))
		r.SrcIndex = int(int32(le.Uint32(b[13:])))
		r.DestTile = int(int32(le.Uint32(b[17:])))
		for i := 0; i < 3; i++ {
			r.Shift[i] = int(int32(le.Uint32(b[21+4*i:])))
			r.Pos[i] = math.Float64frombits(le.Uint64(b[33+8*i:]))
		}
		b = b[HeaderSize:]

		r.Fields = nil
		if r.Kind.hasFields() {
			if len(b) < dec.fieldSize {
				return fmt.Errorf("%s record for particle %d needs %d bytes "+
					"of fields, but only %d remain.", r.Kind, r.ID,
					dec.fieldSize, len(b))
			}
			r.Fields = b[:dec.fieldSize]
			b = b[dec.fieldSize:]
		}

		if err := fn(r); err != nil {
			return err
		}
	}

	return nil
}

// resizeBytes resizes a byte buffer to have length n.
func resizeBytes(b []byte, n int) []byte {
	if cap(b) >= n {
		b = b[:n]
	} else {
		b = b[:cap(b)]
		b = append(b, make([]byte, n-len(b))...)
	}

	return b
}

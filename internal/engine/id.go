package engine

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
)

// Datatype is the tag of an Id
type Datatype uint8

const (
	// Undefined is the zero value: an unbound variable
	Undefined Datatype = iota
	Int
	Double
	Bool
	VocabIndex
	LocalVocabIndex
	BlankNodeIndex
)

func (d Datatype) String() string {
	switch d {
	case Undefined:
		return "Undefined"
	case Int:
		return "Int"
	case Double:
		return "Double"
	case Bool:
		return "Bool"
	case VocabIndex:
		return "VocabIndex"
	case LocalVocabIndex:
		return "LocalVocabIndex"
	case BlankNodeIndex:
		return "BlankNodeIndex"
	default:
		return "unknown"
	}
}

// Id is a compact value handle: either an inline scalar, an index into the
// global or a local vocabulary, a blank node, or Undefined. Ids are
// comparable with ==; equal Ids have equal tag and payload.
type Id struct {
	datatype Datatype
	bits     uint64
}

func MakeUndefined() Id {
	return Id{}
}

func MakeFromInt(v int64) Id {
	return Id{datatype: Int, bits: uint64(v)} // #nosec G115 - bit-pattern storage
}

func MakeFromDouble(v float64) Id {
	return Id{datatype: Double, bits: math.Float64bits(v)}
}

func MakeFromBool(v bool) Id {
	if v {
		return Id{datatype: Bool, bits: 1}
	}
	return Id{datatype: Bool}
}

func MakeFromVocabIndex(idx uint64) Id {
	return Id{datatype: VocabIndex, bits: idx}
}

func MakeFromLocalVocabIndex(idx uint64) Id {
	return Id{datatype: LocalVocabIndex, bits: idx}
}

func MakeFromBlankNodeIndex(idx uint64) Id {
	return Id{datatype: BlankNodeIndex, bits: idx}
}

func (id Id) Datatype() Datatype {
	return id.datatype
}

func (id Id) IsUndefined() bool {
	return id.datatype == Undefined
}

func (id Id) Int() int64 {
	return int64(id.bits) // #nosec G115 - bit-pattern storage
}

func (id Id) Double() float64 {
	return math.Float64frombits(id.bits)
}

func (id Id) Bool() bool {
	return id.bits != 0
}

// Index returns the payload of the index datatypes
func (id Id) Index() uint64 {
	return id.bits
}

// Compare orders Ids by datatype first and payload second.
func (id Id) Compare(other Id) int {
	if c := cmp.Compare(id.datatype, other.datatype); c != 0 {
		return c
	}
	switch id.datatype {
	case Int:
		return cmp.Compare(id.Int(), other.Int())
	case Double:
		return cmp.Compare(id.Double(), other.Double())
	default:
		return cmp.Compare(id.bits, other.bits)
	}
}

func (id Id) String() string {
	switch id.datatype {
	case Undefined:
		return "U"
	case Int:
		return "I:" + strconv.FormatInt(id.Int(), 10)
	case Double:
		return "D:" + strconv.FormatFloat(id.Double(), 'g', -1, 64)
	case Bool:
		return "B:" + strconv.FormatBool(id.Bool())
	case VocabIndex:
		return fmt.Sprintf("V:%d", id.bits)
	case LocalVocabIndex:
		return fmt.Sprintf("L:%d", id.bits)
	case BlankNodeIndex:
		return fmt.Sprintf("BN:%d", id.bits)
	default:
		return "?"
	}
}

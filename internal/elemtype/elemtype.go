// Package elemtype maps Go primitive types to the substrate's datatype
// handle and byte size, replacing the reference implementation's dozens of
// near-identical typed entry points (spec.md §9, "massive typed-variant
// fan-out") with one generic constraint. C5/C8 operations are generic
// functions over Element; the compiler produces one instantiation per type
// actually used, never a hand-rolled body per type.
package elemtype

import (
	"unsafe"
)

// Datatype identifies an element's wire/atomic representation to the
// substrate, independent of the Go type parameter used to reach it.
type Datatype int

const (
	Byte Datatype = iota
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
	Complex64
	Complex128
)

func (d Datatype) String() string {
	switch d {
	case Byte:
		return "byte"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Complex64:
		return "complex64"
	case Complex128:
		return "complex128"
	default:
		return "unknown"
	}
}

// Numeric is the set of primitive element types the put/get/strided family
// supports (spec.md §6, "T ∈ {byte, int8, ... complex128}" minus the
// language-specific aliases that collapse onto these underlying Go types).
type Numeric interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64 | ~complex64 | ~complex128
}

// Integer is the subset atomics beyond swap/fetch/set require (spec.md §6:
// cswap, fadd/add, finc/inc are integers-only).
type Integer interface {
	~int32 | ~int64
}

// Swappable is the set legal for the atomic swap family, which additionally
// allows float32/float64 over the substrate (but never on the intra-node
// fast path, per spec.md §4.5 and §5.4).
type Swappable interface {
	~int32 | ~int64 | ~float32 | ~float64
}

// Ordered is Numeric minus the complex types: the set wait(var, cmp, value)
// can support GT/GE/LT/LE over (spec.md §4.6 implicitly assumes a totally
// ordered element, which complex64/complex128 are not).
type Ordered interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// Element describes one instantiation of Numeric for the engine packages:
// its substrate Datatype tag and its size in bytes.
type Element[T Numeric] struct {
	Datatype Datatype
	Size     int
}

// Of returns the Element descriptor for T.
func Of[T Numeric]() Element[T] {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Element[T]{Datatype: Int8, Size: 1}
	case int16:
		return Element[T]{Datatype: Int16, Size: 2}
	case int32:
		return Element[T]{Datatype: Int32, Size: 4}
	case int64:
		return Element[T]{Datatype: Int64, Size: 8}
	case float32:
		return Element[T]{Datatype: Float32, Size: 4}
	case float64:
		return Element[T]{Datatype: Float64, Size: 8}
	case complex64:
		return Element[T]{Datatype: Complex64, Size: 8}
	case complex128:
		return Element[T]{Datatype: Complex128, Size: 16}
	default:
		// unreachable given the Numeric constraint
		return Element[T]{Datatype: Byte, Size: int(unsafe.Sizeof(zero))}
	}
}

// Bytes reinterprets a slice of T as its little-endian-on-this-platform raw
// byte representation, for handing to the substrate's byte-oriented
// put/get/accumulate primitives. The returned slice aliases data.
func Bytes[T Numeric](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	e := Of[T]()
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*e.Size)
}

// FromBytes is the inverse of Bytes: it reinterprets a raw byte buffer
// (whose length must be a multiple of T's size) as a []T. The returned
// slice aliases b.
func FromBytes[T Numeric](b []byte) []T {
	if len(b) == 0 {
		return nil
	}
	e := Of[T]()
	n := len(b) / e.Size
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

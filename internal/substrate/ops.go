package substrate

import (
	"encoding/binary"
	"math"
)

// applyAtomic performs one accumulate/get_accumulate/fetch_and_op step on
// buf at offset, for a single element of dt. If old is non-nil, the
// pre-operation value is copied into it (get_accumulate/fetch_and_op
// semantics); Accumulate itself passes old=nil.
func applyAtomic(buf []byte, offset int64, dt Datatype, op AtomicOp, data, old []byte) {
	size := int64(dtSize(dt))
	cur := buf[offset : offset+size]
	if old != nil {
		copy(old, cur)
	}
	switch op {
	case OpReplace:
		copy(cur, data)
	case OpNoOp:
		// no mutation; old already captured above
	case OpAdd:
		addInto(cur, data, dt)
	case OpSwap:
		copy(cur, data)
	}
}

func dtSize(dt Datatype) int {
	switch dt {
	case Byte, Int8:
		return 1
	case Int16:
		return 2
	case Int32, Float32:
		return 4
	case Int64, Float64, Complex64:
		return 8
	case Complex128:
		return 16
	default:
		return 8
	}
}

func addInto(cur, delta []byte, dt Datatype) {
	switch dt {
	case Int32:
		v := int32(binary.LittleEndian.Uint32(cur)) + int32(binary.LittleEndian.Uint32(delta))
		binary.LittleEndian.PutUint32(cur, uint32(v))
	case Int64:
		v := int64(binary.LittleEndian.Uint64(cur)) + int64(binary.LittleEndian.Uint64(delta))
		binary.LittleEndian.PutUint64(cur, uint64(v))
	case Float32:
		v := math.Float32frombits(binary.LittleEndian.Uint32(cur)) + math.Float32frombits(binary.LittleEndian.Uint32(delta))
		binary.LittleEndian.PutUint32(cur, math.Float32bits(v))
	case Float64:
		v := math.Float64frombits(binary.LittleEndian.Uint64(cur)) + math.Float64frombits(binary.LittleEndian.Uint64(delta))
		binary.LittleEndian.PutUint64(cur, math.Float64bits(v))
	default:
		// atomics only define add over integers/floats (spec.md §6); other
		// datatypes never reach this path.
	}
}

// reduceBytes folds contributions (each one element, or count elements, of
// dt) with op, matching spec.md §4.8's closed reduction enumeration.
func reduceBytes(dt Datatype, op ReduceOp, contribs [][]byte, count int) ([]byte, error) {
	size := dtSize(dt)
	out := make([]byte, size*count)
	copy(out, contribs[0])
	for _, c := range contribs[1:] {
		for i := 0; i < count; i++ {
			lo := i * size
			reduceElem(dt, op, out[lo:lo+size], c[lo:lo+size])
		}
	}
	return out, nil
}

func reduceElem(dt Datatype, op ReduceOp, acc, next []byte) {
	switch dt {
	case Int32:
		a := int32(binary.LittleEndian.Uint32(acc))
		b := int32(binary.LittleEndian.Uint32(next))
		binary.LittleEndian.PutUint32(acc, uint32(reduceInt(int64(a), int64(b), op)))
	case Int64:
		a := int64(binary.LittleEndian.Uint64(acc))
		b := int64(binary.LittleEndian.Uint64(next))
		binary.LittleEndian.PutUint64(acc, uint64(reduceInt(a, b, op)))
	case Float32:
		a := math.Float32frombits(binary.LittleEndian.Uint32(acc))
		b := math.Float32frombits(binary.LittleEndian.Uint32(next))
		binary.LittleEndian.PutUint32(acc, math.Float32bits(float32(reduceFloat(float64(a), float64(b), op))))
	case Float64:
		a := math.Float64frombits(binary.LittleEndian.Uint64(acc))
		b := math.Float64frombits(binary.LittleEndian.Uint64(next))
		binary.LittleEndian.PutUint64(acc, math.Float64bits(reduceFloat(a, b, op)))
	}
}

func reduceInt(a, b int64, op ReduceOp) int64 {
	switch op {
	case ReduceSum:
		return a + b
	case ReduceProd:
		return a * b
	case ReduceMin:
		if a < b {
			return a
		}
		return b
	case ReduceMax:
		if a > b {
			return a
		}
		return b
	case ReduceBand:
		return a & b
	case ReduceBor:
		return a | b
	case ReduceBxor:
		return a ^ b
	case ReduceLand:
		if a != 0 && b != 0 {
			return 1
		}
		return 0
	default:
		return a
	}
}

func reduceFloat(a, b float64, op ReduceOp) float64 {
	switch op {
	case ReduceSum:
		return a + b
	case ReduceProd:
		return a * b
	case ReduceMin:
		if a < b {
			return a
		}
		return b
	case ReduceMax:
		if a > b {
			return a
		}
		return b
	default:
		return a
	}
}

// encodeAlltoall/decodeAlltoall pack one sender's per-destination payloads
// into a single round contribution (the sender's identity is already
// implied by its slot in the round, see Fabric.joinRound).
func encodeAlltoall(sender int, perDest [][]byte) []byte {
	hdr := make([]byte, 4)
	binary.LittleEndian.PutUint32(hdr, uint32(len(perDest)))
	out := append([]byte(nil), hdr...)
	for _, p := range perDest {
		lenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(p)))
		out = append(out, lenBuf...)
		out = append(out, p...)
	}
	return out
}

func decodeAlltoall(b []byte) (perDest [][]byte) {
	n := int(binary.LittleEndian.Uint32(b[0:4]))
	perDest = make([][]byte, n)
	off := 4
	for i := 0; i < n; i++ {
		l := int(binary.LittleEndian.Uint32(b[off : off+4]))
		off += 4
		perDest[i] = b[off : off+l]
		off += l
	}
	return perDest
}

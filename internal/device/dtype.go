package device

import (
	"fmt"
	"strconv"
	"unsafe"

	"github.com/x448/float16"
)

// DataType is the element kind stored in a tensor.
// The zero value is Invalid, the "type not set" sentinel.
type DataType int

const (
	Invalid DataType = iota
	Float16
	Float32
	Float64
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Bool
	String
)

// Size returns the storage size of one element in bytes.
// It panics for Invalid and for values outside the closed set: both are
// construction bugs upstream and must never default to some width.
func (d DataType) Size() int {
	switch d {
	case Float16, Int16, Uint16:
		return 2
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Int8, Uint8, Bool:
		return 1
	case String:
		return int(unsafe.Sizeof(""))
	case Invalid:
		panic("device: type not set")
	default:
		panic(fmt.Sprintf("device: unexpected type: %d", int(d)))
	}
}

// Valid reports whether d is a member of the closed set other than Invalid.
func (d DataType) Valid() bool {
	return d > Invalid && d <= String
}

func (d DataType) String() string {
	switch d {
	case Invalid:
		return "invalid"
	case Float16:
		return "float16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Bool:
		return "bool"
	case String:
		return "string"
	default:
		return fmt.Sprintf("Unknown(%d)", int(d))
	}
}

// FormatElement renders the element at index i of raw for debug output.
// Byte-sized integers are printed as numbers, never as characters.
func (d DataType) FormatElement(raw []byte, i int) string {
	switch d {
	case Float16:
		h := float16.Frombits(*(*uint16)(unsafe.Pointer(&raw[i*2])))
		return strconv.FormatFloat(float64(h.Float32()), 'g', -1, 32)
	case Float32:
		return strconv.FormatFloat(float64(*(*float32)(unsafe.Pointer(&raw[i*4]))), 'g', -1, 32)
	case Float64:
		return strconv.FormatFloat(*(*float64)(unsafe.Pointer(&raw[i*8])), 'g', -1, 64)
	case Int8:
		return strconv.Itoa(int(int8(raw[i])))
	case Int16:
		return strconv.Itoa(int(*(*int16)(unsafe.Pointer(&raw[i*2]))))
	case Int32:
		return strconv.Itoa(int(*(*int32)(unsafe.Pointer(&raw[i*4]))))
	case Int64:
		return strconv.FormatInt(*(*int64)(unsafe.Pointer(&raw[i*8])), 10)
	case Uint8:
		return strconv.Itoa(int(raw[i]))
	case Uint16:
		return strconv.Itoa(int(*(*uint16)(unsafe.Pointer(&raw[i*2]))))
	case Bool:
		return strconv.FormatBool(raw[i] != 0)
	case String:
		// String slots are opaque; printing them would dereference foreign memory.
		return "<string>"
	case Invalid:
		panic("device: type not set")
	default:
		panic(fmt.Sprintf("device: unexpected type: %d", int(d)))
	}
}

// ElementFloat64 widens the numeric element at index i of raw. It reports
// false for String, whose slots carry no numeric value.
func (d DataType) ElementFloat64(raw []byte, i int) (float64, bool) {
	switch d {
	case Float16:
		return float64(float16.Frombits(*(*uint16)(unsafe.Pointer(&raw[i*2]))).Float32()), true
	case Float32:
		return float64(*(*float32)(unsafe.Pointer(&raw[i*4]))), true
	case Float64:
		return *(*float64)(unsafe.Pointer(&raw[i*8])), true
	case Int8:
		return float64(int8(raw[i])), true
	case Int16:
		return float64(*(*int16)(unsafe.Pointer(&raw[i*2]))), true
	case Int32:
		return float64(*(*int32)(unsafe.Pointer(&raw[i*4]))), true
	case Int64:
		return float64(*(*int64)(unsafe.Pointer(&raw[i*8]))), true
	case Uint8:
		return float64(raw[i]), true
	case Uint16:
		return float64(*(*uint16)(unsafe.Pointer(&raw[i*2]))), true
	case Bool:
		if raw[i] != 0 {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

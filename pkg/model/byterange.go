package model

import (
	"fmt"

	"github.com/oneconcern/vkv/pkg/status"
)

// ByteRange narrows a read to a sub-slice of a stored value.
//
// The zero value selects the whole value.
type ByteRange struct {
	Offset uint64
	Length uint64

	// Bounded is set when Length is meaningful. Otherwise the range extends to the end of the value.
	Bounded bool

	// Suffix selects Length bytes ending Offset bytes before the end of the value.
	// Only suffixes ending at the end of the value are supported.
	Suffix bool
}

// FullRange selects the whole value
var FullRange = ByteRange{}

// RangeFrom selects all bytes from offset to the end of the value
func RangeFrom(offset uint64) ByteRange {
	return ByteRange{Offset: offset}
}

// RangeOf selects length bytes from offset. Requests overrunning the end are clamped.
func RangeOf(offset, length uint64) ByteRange {
	return ByteRange{Offset: offset, Length: length, Bounded: true}
}

// LastBytes selects the last length bytes of the value
func LastBytes(length uint64) ByteRange {
	return RangeFromEnd(0, length)
}

// RangeFromEnd selects length bytes ending offset bytes before the end of the value
func RangeFromEnd(offset, length uint64) ByteRange {
	return ByteRange{Offset: offset, Length: length, Bounded: true, Suffix: true}
}

// IsFull tells if this range selects the whole value
func (r ByteRange) IsFull() bool {
	return r == FullRange
}

// Bounds resolves this range against a value of the given size.
//
// It returns status.ErrRange when the offset exceeds the size. Lengths overrunning the end are clamped.
// Suffixes with an offset fail with status.ErrNotSupported.
func (r ByteRange) Bounds(size uint64) (start, end uint64, err error) {
	if r.Suffix {
		if r.Offset > 0 {
			return 0, 0, status.ErrNotSupported.Wrapf("byte ranges from the end with an offset (%s)", r)
		}
		if r.Length >= size {
			return 0, size, nil
		}
		return size - r.Length, size, nil
	}
	if r.Offset > size {
		return 0, 0, status.ErrRange.Wrapf("offset %d exceeds value length %d", r.Offset, size)
	}
	end = size
	if r.Bounded && size-r.Offset > r.Length {
		end = r.Offset + r.Length
	}
	return r.Offset, end, nil
}

// Slice extracts this range from a value. The returned slice shares memory with data.
func (r ByteRange) Slice(data []byte) ([]byte, error) {
	start, end, err := r.Bounds(uint64(len(data)))
	if err != nil {
		return nil, err
	}
	return data[start:end], nil
}

func (r ByteRange) String() string {
	switch {
	case r.Suffix && r.Offset > 0:
		return fmt.Sprintf("bytes=-%d-%d", r.Offset, r.Length)
	case r.Suffix:
		return fmt.Sprintf("bytes=-%d", r.Length)
	case r.Bounded:
		return fmt.Sprintf("bytes=%d+%d", r.Offset, r.Length)
	default:
		return fmt.Sprintf("bytes=%d-", r.Offset)
	}
}

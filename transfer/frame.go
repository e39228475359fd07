package transfer

import (
	"fmt"
	"strconv"
)

// Control octets of the XMODEM/YMODEM family.
const (
	// SOH starts a frame carrying 128 data bytes.
	SOH byte = 0x01
	// STX starts a frame carrying 1024 data bytes.
	STX byte = 0x02
	// EOT ends the transmission.
	EOT byte = 0x04
	// ACK acknowledges a frame or EOT.
	ACK byte = 0x06
	// NAK rejects a frame, or asks the sender to start in checksum mode.
	NAK byte = 0x15
	// CAN cancels the transfer.
	CAN byte = 0x18
	// CRCRequest is the YMODEM receiver's start request.
	CRCRequest byte = 'C'
	// Pad fills the last short data block.
	Pad byte = 0x1A
)

// Data payload sizes.
const (
	BlockSize     = 128
	BlockSize1K   = 1024
	frameOverhead = 4 // start octet, block number, complement, checksum
)

// Checksum is the 8-bit sum of data.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}

	return sum
}

// Frame is one XMODEM/YMODEM data frame.
type Frame struct {
	// Number is the block number, modulo 256.
	Number byte
	// Data is exactly 128 or 1024 bytes.
	Data []byte
}

// NewFrame builds a frame for chunk, padding a short chunk with fill up to size.
func NewFrame(number byte, chunk []byte, size int, fill byte) *Frame {
	data := make([]byte, size)
	n := copy(data, chunk)
	for i := n; i < size; i++ {
		data[i] = fill
	}

	return &Frame{Number: number, Data: data}
}

// Pack encodes the frame for the wire:
//
//	[SOH|STX][number][255-number][data...][checksum]
func (f *Frame) Pack() []byte {
	start := SOH
	if len(f.Data) == BlockSize1K {
		start = STX
	}

	buf := make([]byte, 0, len(f.Data)+frameOverhead)
	buf = append(buf, start, f.Number, 0xFF-f.Number)
	buf = append(buf, f.Data...)
	buf = append(buf, Checksum(f.Data))

	return buf
}

// ParseFrame decodes the bytes following a SOH or STX start octet: the block
// number, its complement, the data and the checksum.
func ParseFrame(start byte, body []byte) (*Frame, error) {
	size := BlockSize
	if start == STX {
		size = BlockSize1K
	}

	if len(body) != size+3 {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrShortFrame, len(body), size+3)
	}

	number, complement := body[0], body[1]
	if complement != 0xFF-number {
		return nil, fmt.Errorf("%w: block %d complement 0x%02X", ErrBadComplement, number, complement)
	}

	data := body[2 : 2+size]
	if got, want := body[2+size], Checksum(data); got != want {
		return nil, fmt.Errorf("%w: block %d got 0x%02X, want 0x%02X", ErrChecksumMismatch, number, got, want)
	}

	out := make([]byte, size)
	copy(out, data)

	return &Frame{Number: number, Data: out}, nil
}

// HeaderFrame builds the YMODEM block 0: the file name, a NUL, the decimal
// size, zero-padded to 128 bytes.
func HeaderFrame(name string, size int) (*Frame, error) {
	header := make([]byte, 0, BlockSize)
	header = append(header, name...)
	header = append(header, 0)
	header = strconv.AppendInt(header, int64(size), 10)

	if len(header) > BlockSize {
		return nil, fmt.Errorf("transfer: file name %q too long for header block", name)
	}

	return NewFrame(0, header, BlockSize, 0x00), nil
}

// StripPadding removes trailing Pad bytes.
func StripPadding(data []byte) []byte {
	end := len(data)
	for end > 0 && data[end-1] == Pad {
		end--
	}

	return data[:end]
}

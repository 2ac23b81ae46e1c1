package wire

import (
	"encoding/binary"
	"errors"
)

const (
	// TCPHeaderLen is the fixed header length this stack emits and
	// expects: no TCP options, matching spec.md's Non-goals.
	TCPHeaderLen = 20
)

var (
	// ErrShortTCP marks a buffer too small to hold a 20-byte TCP header,
	// or whose data offset doesn't fit the buffer.
	ErrShortTCP = errors.New("wire: short TCP segment")
	// ErrTCPOptions marks a header with a data offset != 5 (options
	// present); unsupported, per spec.md's Non-goals.
	ErrTCPOptions = errors.New("wire: TCP options not supported")
)

// TCPFrame is a zero-copy view over a 20-byte (no options) TCP header
// backed by a caller-owned buffer, in the same accessor style as the
// teacher's tcp.Frame. Flag bits are laid out exactly as RFC 793 figure 3
// (FIN=0x01 ... URG=0x20), the same encoding tcp.Flags uses, so callers can
// convert with a plain numeric cast.
type TCPFrame struct {
	buf []byte
}

// ParseTCP validates buf as a TCP segment with no options and returns a
// frame over it.
func ParseTCP(buf []byte) (TCPFrame, error) {
	if len(buf) < TCPHeaderLen {
		return TCPFrame{}, ErrShortTCP
	}
	offset := buf[12] >> 4
	if offset != 5 {
		return TCPFrame{}, ErrTCPOptions
	}
	return TCPFrame{buf: buf}, nil
}

// BuildTCP writes a fixed 20-byte header (no options) followed by payload
// into buf and returns a frame over it. The caller must compute and set the
// checksum afterwards via WriteChecksum.
func BuildTCP(buf []byte, srcPort, dstPort uint16, seq, ack uint32, flags uint16, window uint16, payload []byte) TCPFrame {
	total := TCPHeaderLen + len(payload)
	f := TCPFrame{buf: buf[:total]}
	binary.BigEndian.PutUint16(f.buf[0:2], srcPort)
	binary.BigEndian.PutUint16(f.buf[2:4], dstPort)
	binary.BigEndian.PutUint32(f.buf[4:8], seq)
	binary.BigEndian.PutUint32(f.buf[8:12], ack)
	binary.BigEndian.PutUint16(f.buf[12:14], 5<<12|flags&0x3f)
	binary.BigEndian.PutUint16(f.buf[14:16], window)
	binary.BigEndian.PutUint16(f.buf[16:18], 0) // checksum, filled in later
	binary.BigEndian.PutUint16(f.buf[18:20], 0) // urgent pointer: unused
	copy(f.buf[TCPHeaderLen:], payload)
	return f
}

// RawData returns the frame's backing bytes, including payload.
func (f TCPFrame) RawData() []byte { return f.buf }

// SourcePort returns the sending port.
func (f TCPFrame) SourcePort() uint16 { return binary.BigEndian.Uint16(f.buf[0:2]) }

// DestinationPort returns the receiving port.
func (f TCPFrame) DestinationPort() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }

// Seq returns the segment's sequence number.
func (f TCPFrame) Seq() uint32 { return binary.BigEndian.Uint32(f.buf[4:8]) }

// Ack returns the segment's acknowledgement number.
func (f TCPFrame) Ack() uint32 { return binary.BigEndian.Uint32(f.buf[8:12]) }

// DataOffsetAndFlags returns the header length (in 32-bit words) and the
// low 6 flag bits (RFC 793 figure 3; URG/ACK/PSH/RST/SYN/FIN).
func (f TCPFrame) DataOffsetAndFlags() (offset uint8, flags uint16) {
	v := binary.BigEndian.Uint16(f.buf[12:14])
	return uint8(v >> 12), v & 0x3f
}

// WindowSize returns the advertised receive window.
func (f TCPFrame) WindowSize() uint16 { return binary.BigEndian.Uint16(f.buf[14:16]) }

// CRC returns the checksum field.
func (f TCPFrame) CRC() uint16 { return binary.BigEndian.Uint16(f.buf[16:18]) }

// SetCRC writes the checksum field.
func (f TCPFrame) SetCRC(v uint16) { binary.BigEndian.PutUint16(f.buf[16:18], v) }

// Payload returns the bytes following the fixed 20-byte header.
func (f TCPFrame) Payload() []byte { return f.buf[TCPHeaderLen:] }

// WriteChecksum computes and sets this TCP frame's checksum, given the
// enclosing IPv4 frame for the pseudo-header.
func (f TCPFrame) WriteChecksum(ip IPv4Frame) {
	var crc CRC791
	ip.WriteTCPPseudoHeader(&crc, len(f.buf))
	f.SetCRC(0)
	crc.Write(f.buf)
	f.SetCRC(neverZero(crc.Sum16()))
}

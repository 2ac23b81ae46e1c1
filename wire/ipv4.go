package wire

import (
	"encoding/binary"
	"errors"
)

const (
	// IPv4HeaderLen is the fixed header length this stack emits and
	// expects: no IP options, matching spec.md's Non-goals.
	IPv4HeaderLen = 20

	// ProtoTCP is the IPv4 protocol number for TCP (RFC 790).
	ProtoTCP = 6

	ttlDefault = 64
)

var (
	// ErrNotIPv4 marks a datagram whose version nibble isn't 4.
	ErrNotIPv4 = errors.New("wire: not an IPv4 datagram")
	// ErrNotTCP marks an IPv4 datagram whose protocol field isn't TCP.
	ErrNotTCP = errors.New("wire: not a TCP datagram")
	// ErrShortIPv4 marks a buffer too small to hold a 20-byte IPv4 header,
	// or whose declared total length doesn't fit the buffer.
	ErrShortIPv4 = errors.New("wire: short IPv4 datagram")
	// ErrIPv4Options marks a header with IHL != 5 (options present);
	// unsupported, per spec.md's Non-goals.
	ErrIPv4Options = errors.New("wire: IPv4 options not supported")
)

// IPv4Frame is a zero-copy view over a 20-byte (no options) IPv4 header
// backed by a caller-owned buffer. Field accessors read/write buf directly;
// there is no internal copy. Mirrors the teacher's ipv4.Frame accessor
// shape, trimmed to the fixed-IHL subset this stack emits.
type IPv4Frame struct {
	buf []byte
}

// ParseIPv4 validates buf as an IPv4 datagram with no options and returns a
// frame over it. The returned frame's RawData is buf[:TotalLength()].
func ParseIPv4(buf []byte) (IPv4Frame, error) {
	if len(buf) < IPv4HeaderLen {
		return IPv4Frame{}, ErrShortIPv4
	}
	version := buf[0] >> 4
	if version != 4 {
		return IPv4Frame{}, ErrNotIPv4
	}
	ihl := buf[0] & 0xf
	if ihl != 5 {
		return IPv4Frame{}, ErrIPv4Options
	}
	total := binary.BigEndian.Uint16(buf[2:4])
	if int(total) > len(buf) || total < IPv4HeaderLen {
		return IPv4Frame{}, ErrShortIPv4
	}
	f := IPv4Frame{buf: buf[:total]}
	if f.Protocol() != ProtoTCP {
		return f, ErrNotTCP
	}
	return f, nil
}

// BuildIPv4 writes a fixed 20-byte header (no options, TTL 64, protocol TCP)
// into buf[:IPv4HeaderLen+payloadLen] and returns a frame over it. The
// caller must compute and set the header checksum afterwards.
func BuildIPv4(buf []byte, src, dst [4]byte, payloadLen int) IPv4Frame {
	total := IPv4HeaderLen + payloadLen
	f := IPv4Frame{buf: buf[:total]}
	f.buf[0] = 4<<4 | 5
	f.buf[1] = 0 // ToS
	binary.BigEndian.PutUint16(f.buf[2:4], uint16(total))
	binary.BigEndian.PutUint16(f.buf[4:6], 0) // ID: no fragmentation support
	binary.BigEndian.PutUint16(f.buf[6:8], 0) // flags/fragment offset
	f.buf[8] = ttlDefault
	f.buf[9] = ProtoTCP
	binary.BigEndian.PutUint16(f.buf[10:12], 0) // checksum, filled in later
	*f.SourceAddr() = src
	*f.DestinationAddr() = dst
	return f
}

// RawData returns the frame's backing bytes, including payload.
func (f IPv4Frame) RawData() []byte { return f.buf }

// TotalLength is the entire datagram size, header plus payload.
func (f IPv4Frame) TotalLength() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }

// TTL is the time-to-live field.
func (f IPv4Frame) TTL() uint8 { return f.buf[8] }

// Protocol is the IPv4 protocol number (6 for TCP).
func (f IPv4Frame) Protocol() uint8 { return f.buf[9] }

// CRC returns the header checksum field.
func (f IPv4Frame) CRC() uint16 { return binary.BigEndian.Uint16(f.buf[10:12]) }

// SetCRC writes the header checksum field.
func (f IPv4Frame) SetCRC(v uint16) { binary.BigEndian.PutUint16(f.buf[10:12], v) }

// SourceAddr returns a pointer to the 4-byte source address.
func (f IPv4Frame) SourceAddr() *[4]byte { return (*[4]byte)(f.buf[12:16]) }

// DestinationAddr returns a pointer to the 4-byte destination address.
func (f IPv4Frame) DestinationAddr() *[4]byte { return (*[4]byte)(f.buf[16:20]) }

// Payload returns the bytes following the fixed 20-byte header.
func (f IPv4Frame) Payload() []byte { return f.buf[IPv4HeaderLen:] }

// CalculateHeaderCRC computes the IPv4 header checksum (over the header
// only, with the CRC field itself treated as zero).
func (f IPv4Frame) CalculateHeaderCRC() uint16 {
	var crc CRC791
	crc.Write(f.buf[0:10])
	crc.Write(f.buf[12:20])
	return neverZero(crc.Sum16())
}

// WriteTCPPseudoHeader folds this IPv4 frame's TCP pseudo-header fields
// (RFC 793 §3.1: source/destination address, zero byte, protocol, TCP
// segment length) into crc, ahead of the TCP segment bytes themselves.
func (f IPv4Frame) WriteTCPPseudoHeader(crc *CRC791, tcpLen int) {
	crc.Write(f.SourceAddr()[:])
	crc.Write(f.DestinationAddr()[:])
	crc.AddUint16(uint16(ProtoTCP))
	crc.AddUint16(uint16(tcpLen))
}

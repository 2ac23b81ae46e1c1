package wire

import (
	"bytes"
	"testing"
)

func TestBuildParseIPv4RoundTrip(t *testing.T) {
	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}
	payload := []byte("hello")
	var buf [64]byte

	f := BuildIPv4(buf[:], src, dst, len(payload))
	copy(f.Payload(), payload)
	f.SetCRC(f.CalculateHeaderCRC())

	parsed, err := ParseIPv4(buf[:f.TotalLength()])
	if err != nil {
		t.Fatalf("ParseIPv4: %v", err)
	}
	if *parsed.SourceAddr() != src {
		t.Errorf("src addr = %v, want %v", *parsed.SourceAddr(), src)
	}
	if *parsed.DestinationAddr() != dst {
		t.Errorf("dst addr = %v, want %v", *parsed.DestinationAddr(), dst)
	}
	if parsed.Protocol() != ProtoTCP {
		t.Errorf("protocol = %d, want %d", parsed.Protocol(), ProtoTCP)
	}
	if parsed.TTL() != ttlDefault {
		t.Errorf("ttl = %d, want %d", parsed.TTL(), ttlDefault)
	}
	if !bytes.Equal(parsed.Payload(), payload) {
		t.Errorf("payload = %q, want %q", parsed.Payload(), payload)
	}
	if got := parsed.CRC(); got != f.CRC() {
		t.Errorf("crc = %d, want %d", got, f.CRC())
	}
}

func TestParseIPv4Rejects(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
		err  error
	}{
		{"short", make([]byte, 10), ErrShortIPv4},
		{"bad version", func() []byte {
			var b [20]byte
			b[0] = 6 << 4
			return b[:]
		}(), ErrNotIPv4},
		{"options", func() []byte {
			var b [24]byte
			b[0] = 4<<4 | 6
			return b[:]
		}(), ErrIPv4Options},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ParseIPv4(c.buf)
			if err != c.err {
				t.Errorf("err = %v, want %v", err, c.err)
			}
		})
	}
}

func TestBuildParseTCPRoundTrip(t *testing.T) {
	var ipbuf [128]byte
	payload := []byte("payload bytes")
	ip := BuildIPv4(ipbuf[:], [4]byte{192, 168, 0, 1}, [4]byte{192, 168, 0, 2}, TCPHeaderLen+len(payload))

	tf := BuildTCP(ip.Payload(), 4000, 80, 111, 222, 0x12 /* SYN|ACK */, 1024, payload)
	tf.WriteChecksum(ip)

	parsed, err := ParseTCP(ip.Payload()[:len(tf.RawData())])
	if err != nil {
		t.Fatalf("ParseTCP: %v", err)
	}
	if parsed.SourcePort() != 4000 {
		t.Errorf("src port = %d, want 4000", parsed.SourcePort())
	}
	if parsed.DestinationPort() != 80 {
		t.Errorf("dst port = %d, want 80", parsed.DestinationPort())
	}
	if parsed.Seq() != 111 {
		t.Errorf("seq = %d, want 111", parsed.Seq())
	}
	if parsed.Ack() != 222 {
		t.Errorf("ack = %d, want 222", parsed.Ack())
	}
	offset, flags := parsed.DataOffsetAndFlags()
	if offset != 5 {
		t.Errorf("offset = %d, want 5", offset)
	}
	if flags != 0x12 {
		t.Errorf("flags = %#x, want 0x12", flags)
	}
	if parsed.WindowSize() != 1024 {
		t.Errorf("window = %d, want 1024", parsed.WindowSize())
	}
	if !bytes.Equal(parsed.Payload(), payload) {
		t.Errorf("payload = %q, want %q", parsed.Payload(), payload)
	}

	// Checksum must validate: summing the pseudo-header plus the full
	// segment (with the CRC field as transmitted) folds to zero, or to the
	// all-ones value under the never-zero convention.
	var crc CRC791
	ip.WriteTCPPseudoHeader(&crc, len(parsed.RawData()))
	crc.Write(parsed.RawData())
	if sum := crc.Sum16(); sum != 0 && sum != 0xffff {
		t.Errorf("checksum did not validate, folded sum = %#x", sum)
	}
}

func TestParseTCPRejectsShort(t *testing.T) {
	_, err := ParseTCP(make([]byte, 10))
	if err != ErrShortTCP {
		t.Errorf("err = %v, want %v", err, ErrShortTCP)
	}
}

func TestParseTCPRejectsOptions(t *testing.T) {
	var buf [24]byte
	buf[12] = 6 << 4 // data offset 6: options present
	_, err := ParseTCP(buf[:])
	if err != ErrTCPOptions {
		t.Errorf("err = %v, want %v", err, ErrTCPOptions)
	}
}

func TestCRC791KnownValue(t *testing.T) {
	// RFC 1071 worked example.
	data := []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}
	var crc CRC791
	crc.Write(data)
	const want = 0x220d
	if got := crc.Sum16(); got != want {
		t.Errorf("Sum16() = %#x, want %#x", got, want)
	}
}

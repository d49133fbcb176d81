// Package tsinspect gives the health sweep a real parse of the produced
// artifact instead of only mtime/process-liveness checks: it reads the
// first MPEG-TS packet of the newest ingest segment and confirms it is a
// well-formed transport-stream packet (sync byte, a readable PID).
//
// Grounded on github.com/Comcast/gots/v2 (an ausocean-cloud dependency)
// and specifically on ausocean-cloud/model/mtsmedia.go's gotsPacket,
// which is the pack's only real usage of this library: gots exposes no
// conversion from a raw byte slice to a *packet.Packet, so callers
// reinterpret the buffer via unsafe.Pointer and read fields through
// Packet's methods (PID() here) rather than package-level functions.
// This is a sanity check, not a full demux: a malformed leading packet
// is logged and folded into the health sweep's diagnostics, it never
// blocks a spawn by itself.
package tsinspect

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/Comcast/gots/v2/packet"
)

// syncByte is the fixed leading byte of every MPEG-TS packet (ISO/IEC
// 13818-1).
const syncByte = 0x47

// CheckSegment reads the first TS packet from the segment file at path
// and reports whether it parses as a valid MPEG-TS packet, along with
// its PID for diagnostics.
func CheckSegment(path string) (ok bool, pid uint16, err error) {
	f, openErr := os.Open(path)
	if openErr != nil {
		return false, 0, openErr
	}
	defer f.Close()

	buf := make([]byte, packet.PacketSize)
	n, readErr := f.Read(buf)
	if readErr != nil {
		return false, 0, readErr
	}
	if n < packet.PacketSize {
		return false, 0, fmt.Errorf("tsinspect: short read (%d bytes, want %d)", n, packet.PacketSize)
	}
	if buf[0] != syncByte {
		return false, 0, fmt.Errorf("tsinspect: bad sync byte 0x%02x", buf[0])
	}

	pkt := asPacket(buf)
	return true, uint16(pkt.PID()), nil
}

// asPacket reinterprets buf as a *packet.Packet, the same unsafe
// conversion ausocean-cloud's model.gotsPacket uses.
func asPacket(buf []byte) *packet.Packet {
	return *(**packet.Packet)(unsafe.Pointer(&buf))
}

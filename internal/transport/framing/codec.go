// Package framing packs and parses the binary frames of the live voice
// link. Three layouts are in use: v1 frames are bare PCM bytes, v2 frames
// carry a 16-byte header with a sequence number and send timestamp, and v3
// frames carry a compact 4-byte header. Audio and JSON command payloads
// share the framed layouts and are told apart by the payload kind field.
package framing

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
	"time"
)

const (
	Version1 = 1
	Version2 = 2
	Version3 = 3
)

// v2 header layout, all fields big-endian:
//
//	[0:2]   protocol version
//	[2:4]   payload kind
//	[4:8]   sequence number
//	[8:12]  send time, unix milliseconds (low 32 bits)
//	[12:16] payload size
const (
	v2HeaderSize    = 16
	v2OffKind       = 2
	v2OffSequence   = 4
	v2OffTimestamp  = 8
	v2OffPayloadLen = 12
)

// v3 header layout: kind byte, reserved byte, big-endian payload size.
const (
	v3HeaderSize    = 4
	v3OffPayloadLen = 2
)

const (
	kindAudio = 0
	kindCmd   = 1
)

var (
	ErrShortFrame     = errors.New("frame shorter than its header")
	ErrPayloadSize    = errors.New("frame payload size exceeds frame")
	ErrUnknownPayload = errors.New("frame payload kind unknown")
)

// PayloadKind tells audio bytes apart from framed JSON commands.
type PayloadKind int

const (
	PayloadKindAudio PayloadKind = iota
	PayloadKindCommand
)

// sequence numbers outbound v2 frames across the process.
var sequence atomic.Uint32

// NormalizeVersion clamps a negotiated version to a supported one. Anything
// unrecognized falls back to the v1 raw layout.
func NormalizeVersion(version int) int {
	if version == Version2 || version == Version3 {
		return version
	}
	return Version1
}

// Decode extracts the payload and its kind from one inbound frame. The v2
// sequence and timestamp fields are informational and not validated.
func Decode(version int, frame []byte) ([]byte, PayloadKind, error) {
	switch NormalizeVersion(version) {
	case Version2:
		if len(frame) < v2HeaderSize {
			return nil, PayloadKindAudio, ErrShortFrame
		}
		kind := int(binary.BigEndian.Uint16(frame[v2OffKind : v2OffKind+2]))
		size := int(binary.BigEndian.Uint32(frame[v2OffPayloadLen : v2OffPayloadLen+4]))
		return slicePayload(frame, v2HeaderSize, kind, size)
	case Version3:
		if len(frame) < v3HeaderSize {
			return nil, PayloadKindAudio, ErrShortFrame
		}
		kind := int(frame[0])
		size := int(binary.BigEndian.Uint16(frame[v3OffPayloadLen : v3OffPayloadLen+2]))
		return slicePayload(frame, v3HeaderSize, kind, size)
	default:
		return frame, PayloadKindAudio, nil
	}
}

// Pack wraps one outbound audio payload in the negotiated frame layout.
func Pack(version int, payload []byte) []byte {
	switch NormalizeVersion(version) {
	case Version2:
		return packV2(payload)
	case Version3:
		return packV3(payload)
	default:
		return payload
	}
}

func slicePayload(frame []byte, headerSize int, kind int, size int) ([]byte, PayloadKind, error) {
	if size > len(frame)-headerSize {
		return nil, PayloadKindAudio, ErrPayloadSize
	}
	payload := frame[headerSize : headerSize+size]
	switch kind {
	case kindAudio:
		return payload, PayloadKindAudio, nil
	case kindCmd:
		return payload, PayloadKindCommand, nil
	default:
		return nil, PayloadKindAudio, ErrUnknownPayload
	}
}

func packV2(payload []byte) []byte {
	frame := make([]byte, v2HeaderSize+len(payload))
	binary.BigEndian.PutUint16(frame[0:2], Version2)
	binary.BigEndian.PutUint16(frame[v2OffKind:v2OffKind+2], kindAudio)
	binary.BigEndian.PutUint32(frame[v2OffSequence:v2OffSequence+4], sequence.Add(1))
	binary.BigEndian.PutUint32(frame[v2OffTimestamp:v2OffTimestamp+4], uint32(time.Now().UnixMilli()))
	binary.BigEndian.PutUint32(frame[v2OffPayloadLen:v2OffPayloadLen+4], uint32(len(payload)))
	copy(frame[v2HeaderSize:], payload)
	return frame
}

func packV3(payload []byte) []byte {
	frame := make([]byte, v3HeaderSize+len(payload))
	frame[0] = kindAudio
	binary.BigEndian.PutUint16(frame[v3OffPayloadLen:v3OffPayloadLen+2], uint16(len(payload)))
	copy(frame[v3HeaderSize:], payload)
	return frame
}

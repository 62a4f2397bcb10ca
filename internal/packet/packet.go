// Package packet classifies raw transport frames into text or tank
// packets and extracts the semantic fields the relay and command layers
// act on.
package packet

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/tankrelay/tankrelay/internal/textcodec"
	"github.com/tankrelay/tankrelay/internal/variant"
)

// MessageType is the little-endian u32 that leads every frame.
type MessageType uint32

const (
	Unknown     MessageType = 0
	ServerHello MessageType = 1
	GenericText MessageType = 2
	GameMessage MessageType = 3
	GamePacket  MessageType = 4
)

// Tank packet sub-types (TankHeader byte offset 4).
const (
	SubTypeCallFunction byte = 1
	SubTypeDisconnect   byte = 26
)

// TankHeaderLen is the fixed header size of every GAME_PACKET frame.
const TankHeaderLen = 60

// TankHeader is the fixed 60-byte header of a GAME_PACKET frame. Bytes
// not named here are preserved verbatim on rewrite.
type TankHeader struct {
	MessageType MessageType
	SubType     byte
	OriginNetID int32
	TargetNetID int32
	StateFlags  uint32
	InfoDelay   int32
	ExtraLen    uint32
	Raw         [TankHeaderLen]byte // the full original header, for verbatim preservation
}

// ParseTankHeader reads the fixed fields out of a 60-byte header buffer.
func ParseTankHeader(buf []byte) (TankHeader, error) {
	if len(buf) < TankHeaderLen {
		return TankHeader{}, fmt.Errorf("packet: short tank header (%d bytes)", len(buf))
	}
	var h TankHeader
	copy(h.Raw[:], buf[:TankHeaderLen])
	h.MessageType = MessageType(binary.LittleEndian.Uint32(buf[0:4]))
	h.SubType = buf[4]
	h.OriginNetID = int32(binary.LittleEndian.Uint32(buf[8:12]))
	h.TargetNetID = int32(binary.LittleEndian.Uint32(buf[12:16]))
	h.StateFlags = binary.LittleEndian.Uint32(buf[16:20])
	h.InfoDelay = int32(binary.LittleEndian.Uint32(buf[24:28]))
	h.ExtraLen = binary.LittleEndian.Uint32(buf[56:60])
	return h, nil
}

// Build rebuilds a 60-byte header buffer, preserving opaque bytes from
// Raw and overwriting only the fields that may have changed.
func (h TankHeader) Build() []byte {
	out := make([]byte, TankHeaderLen)
	copy(out, h.Raw[:])
	binary.LittleEndian.PutUint32(out[0:4], uint32(h.MessageType))
	out[4] = h.SubType
	binary.LittleEndian.PutUint32(out[8:12], uint32(h.OriginNetID))
	binary.LittleEndian.PutUint32(out[12:16], uint32(h.TargetNetID))
	binary.LittleEndian.PutUint32(out[16:20], h.StateFlags)
	binary.LittleEndian.PutUint32(out[24:28], uint32(h.InfoDelay))
	binary.LittleEndian.PutUint32(out[56:60], h.ExtraLen)
	return out
}

// ID is the derived semantic tag for a classified packet.
type ID int

const (
	IDUnknown ID = iota
	IDServerHello
	IDQuit
	IDQuitToExit
	IDJoinRequest
	IDValidateWorld
	IDInput
	IDLog
	IDDisconnect
	IDOnSendToServer
	IDOnSpawn
	IDOnRemove
	IDOnNameChanged
	IDOnChangeSkin
)

// textActions maps the "action" key of a non-hello text record to an ID.
var textActions = map[string]ID{
	"quit":           IDQuit,
	"quit_to_exit":   IDQuitToExit,
	"join_request":   IDJoinRequest,
	"validate_world": IDValidateWorld,
	"input":          IDInput,
	"log":            IDLog,
}

// callFunctions maps the first string argument of a CALL_FUNCTION tank
// packet to an ID.
var callFunctions = map[string]ID{
	"OnSendToServer": IDOnSendToServer,
	"OnSpawn":        IDOnSpawn,
	"OnRemove":       IDOnRemove,
	"OnNameChanged":  IDOnNameChanged,
	"OnChangeSkin":   IDOnChangeSkin,
}

// Packet is the result of classifying a RawFrame.
type Packet struct {
	ID ID

	// Text frames (SERVER_HELLO/GENERIC_TEXT/GAME_MESSAGE).
	MessageType MessageType
	Text        *textcodec.Text
	InputText   string // cached "text" key, or the fallback-parsed line for Input packets

	// Tank frames (GAME_PACKET).
	Header   TankHeader
	Variants variant.List
	Function string // first string argument of a CALL_FUNCTION packet

	Raw         []byte // the original frame, minus a stripped trailing NUL
	HadTrailNUL bool
}

// Classify strips at most one trailing NUL, reads the leading message
// type, and dispatches to the text or tank decoder. Frames shorter than
// 4 bytes, or whose message type doesn't match a known family, classify
// as raw/Unknown with Raw left intact.
func Classify(frame []byte) Packet {
	raw := frame
	hadNUL := false
	if len(raw) > 0 && raw[len(raw)-1] == 0 {
		raw = raw[:len(raw)-1]
		hadNUL = true
	}
	if len(raw) < 4 {
		return Packet{ID: IDUnknown, Raw: raw, HadTrailNUL: hadNUL}
	}
	mt := MessageType(binary.LittleEndian.Uint32(raw[0:4]))
	switch mt {
	case ServerHello, GenericText, GameMessage:
		return classifyText(mt, raw, hadNUL)
	case GamePacket:
		return classifyTank(raw, hadNUL)
	default:
		return Packet{ID: IDUnknown, MessageType: mt, Raw: raw, HadTrailNUL: hadNUL}
	}
}

func classifyText(mt MessageType, raw []byte, hadNUL bool) Packet {
	body := raw[4:]
	text := textcodec.Parse(body, textcodec.DefaultDelimiter)
	p := Packet{MessageType: mt, Text: text, Raw: raw, HadTrailNUL: hadNUL}

	if mt == ServerHello {
		p.ID = IDServerHello
		return p
	}

	action := text.Get("action", 0)
	id, ok := textActions[action]
	if !ok {
		p.ID = IDUnknown
		return p
	}
	p.ID = id

	if id == IDInput {
		if s := text.Get("text", 0); s != "" {
			p.InputText = s
		} else {
			// fallback path for malformed client input: second token of
			// a line whose key is the empty string. The lines are split
			// raw here, because the record parser drops a leading empty
			// token and so never yields an empty key for "|value|...".
			for _, line := range strings.Split(string(body), "\n") {
				tokens := strings.Split(line, string(rune(textcodec.DefaultDelimiter)))
				if len(tokens) > 1 && tokens[0] == "" {
					p.InputText = tokens[1]
					break
				}
			}
		}
	}
	return p
}

func classifyTank(raw []byte, hadNUL bool) Packet {
	if len(raw) < TankHeaderLen {
		return Packet{ID: IDUnknown, MessageType: GamePacket, Raw: raw, HadTrailNUL: hadNUL}
	}
	header, err := ParseTankHeader(raw)
	if err != nil {
		return Packet{ID: IDUnknown, MessageType: GamePacket, Raw: raw, HadTrailNUL: hadNUL}
	}
	extraEnd := TankHeaderLen + int(header.ExtraLen)
	if extraEnd > len(raw) {
		extraEnd = len(raw)
	}
	extra := raw[TankHeaderLen:extraEnd]

	p := Packet{MessageType: GamePacket, Header: header, Raw: raw, HadTrailNUL: hadNUL}

	switch header.SubType {
	case SubTypeDisconnect:
		p.ID = IDDisconnect
		return p
	case SubTypeCallFunction:
		vl, err := variant.Decode(extra)
		if err != nil {
			p.ID = IDUnknown
			return p
		}
		p.Variants = vl
		if len(vl.Entries) > 0 {
			if first, ok := vl.Get(0); ok && first.Tag == variant.TagString {
				p.Function = first.Str
				if id, ok := callFunctions[first.Str]; ok {
					p.ID = id
					return p
				}
			}
		}
		p.ID = IDUnknown
		return p
	default:
		p.ID = IDUnknown
		return p
	}
}

// Emit re-serializes a text Packet from its (MessageType, Text), and
// restores the trailing NUL if the original frame had one.
func (p Packet) Emit() []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(p.MessageType))
	out = append(out, p.Text.Emit()...)
	if p.HadTrailNUL {
		out = append(out, 0)
	}
	return out
}

// EmitTank rebuilds a tank frame from header and a (possibly rewritten)
// extra buffer, restoring the trailing NUL if the original had one.
func EmitTank(header TankHeader, extra []byte, hadTrailNUL bool) []byte {
	header.ExtraLen = uint32(len(extra))
	out := header.Build()
	out = append(out, extra...)
	if hadTrailNUL {
		out = append(out, 0)
	}
	return out
}

// StripTrailingNUL removes at most one trailing NUL byte, reporting
// whether one was present.
func StripTrailingNUL(buf []byte) ([]byte, bool) {
	if len(buf) > 0 && buf[len(buf)-1] == 0 {
		return buf[:len(buf)-1], true
	}
	return buf, false
}

// Package inject builds and sends synthetic packets toward the client
// or the upstream game server: chat log lines, forced disconnect/join
// flows, and CALL_FUNCTION invocations, mirroring
// internal/connection.Upstream.Send/SendRaw generalized from raw
// stratum JSON lines to the text/tank frame shapes this relay speaks.
package inject

import (
	"github.com/tankrelay/tankrelay/internal/packet"
	"github.com/tankrelay/tankrelay/internal/textcodec"
	"github.com/tankrelay/tankrelay/internal/variant"
	"github.com/tankrelay/tankrelay/pkg/logger"
)

// Peer is the minimal send surface inject needs from a transport peer.
type Peer interface {
	Send(frame []byte) error
}

// VariantArgs describes the optional fields of sendVariantToClient.
// spec.md also names a channelId argument, defaulting to 0; it
// addresses the out-of-scope reliable-datagram transport's channel
// concept (see internal/transport's package doc), which
// internal/transport does not implement (this relay speaks one
// channel over one UDP stream per peer), so there is no non-zero
// value it could ever carry here and the field is omitted rather than
// kept as permanent dead weight.
type VariantArgs struct {
	NetID       int32
	TargetNetID int32
	Delay       int
}

// DefaultVariantArgs matches spec's {netId=-1, targetNetId=0, delay=0}
// defaults.
func DefaultVariantArgs() VariantArgs {
	return VariantArgs{NetID: -1, TargetNetID: 0, Delay: 0}
}

func send(p Peer, frame []byte, what string) bool {
	if p == nil {
		logger.Default.Warn("inject: no peer available for %s", what)
		return false
	}
	if err := p.Send(frame); err != nil {
		logger.Default.Error("inject: sending %s: %v", what, err)
	}
	return true
}

// SendLog sends a chat-log line to the client: a GAME_MESSAGE text
// frame with "action|log" and "msg|<message>", channel 0.
func SendLog(client Peer, message string) bool {
	t := textcodec.New(textcodec.DefaultDelimiter)
	t.Set("action", "log")
	t.Set("msg", message)
	p := packet.Packet{MessageType: packet.GameMessage, Text: t}
	return send(client, p.Emit(), "log")
}

// SendQuitToExit sends a GAME_MESSAGE "quit_to_exit" text frame to the
// server.
func SendQuitToExit(server Peer) bool {
	t := textcodec.New(textcodec.DefaultDelimiter)
	t.Set("action", "quit_to_exit")
	p := packet.Packet{MessageType: packet.GameMessage, Text: t}
	return send(server, p.Emit(), "quit_to_exit")
}

// SendJoinRequest sends a GAME_MESSAGE "join_request" text frame to
// the server.
func SendJoinRequest(server Peer, worldName, invitedWorld string) bool {
	t := textcodec.New(textcodec.DefaultDelimiter)
	t.Set("action", "join_request")
	t.Set("name", worldName)
	t.Set("invitedWorld", invitedWorld)
	p := packet.Packet{MessageType: packet.GameMessage, Text: t}
	return send(server, p.Emit(), "join_request")
}

// SendVariantToClient builds a CALL_FUNCTION tank frame with
// functionName prepended to args, and sends it to the client with a
// trailing NUL.
func SendVariantToClient(client Peer, functionName string, args []any, opts VariantArgs) bool {
	full := make([]any, 0, len(args)+1)
	full = append(full, functionName)
	full = append(full, args...)
	list := variant.Build(full)
	extra := variant.Encode(list)

	header := packet.TankHeader{
		MessageType: packet.GamePacket,
		SubType:     packet.SubTypeCallFunction,
		OriginNetID: opts.NetID,
		TargetNetID: opts.TargetNetID,
		InfoDelay:   int32(opts.Delay),
	}
	frame := packet.EmitTank(header, extra, true)
	return send(client, frame, "call_function:"+functionName)
}

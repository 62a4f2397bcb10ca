package inject

import (
	"errors"
	"testing"

	"github.com/tankrelay/tankrelay/internal/packet"
)

type recordingPeer struct {
	frames [][]byte
	failOn int
}

func (p *recordingPeer) Send(frame []byte) error {
	p.frames = append(p.frames, frame)
	if p.failOn > 0 && len(p.frames) == p.failOn {
		return errors.New("boom")
	}
	return nil
}

func TestSendLogBuildsGameMessageFrame(t *testing.T) {
	client := &recordingPeer{}
	if !SendLog(client, "hello world") {
		t.Fatalf("expected SendLog to report true")
	}
	if len(client.frames) != 1 {
		t.Fatalf("expected 1 frame sent")
	}
	parsed := packet.Classify(client.frames[0])
	if parsed.ID != packet.IDLog {
		t.Fatalf("expected classified ID IDLog, got %v", parsed.ID)
	}
	if parsed.Text.Get("msg", 0) != "hello world" {
		t.Fatalf("expected msg field round-trip, got %q", parsed.Text.Get("msg", 0))
	}
}

func TestSendQuitToExitAndJoinRequest(t *testing.T) {
	server := &recordingPeer{}
	if !SendQuitToExit(server) {
		t.Fatalf("expected SendQuitToExit true")
	}
	if !SendJoinRequest(server, "world1", "world2") {
		t.Fatalf("expected SendJoinRequest true")
	}
	if len(server.frames) != 2 {
		t.Fatalf("expected 2 frames sent")
	}
	quit := packet.Classify(server.frames[0])
	if quit.ID != packet.IDQuitToExit {
		t.Fatalf("expected IDQuitToExit, got %v", quit.ID)
	}
	join := packet.Classify(server.frames[1])
	if join.ID != packet.IDJoinRequest {
		t.Fatalf("expected IDJoinRequest, got %v", join.ID)
	}
}

func TestSendVariantToClientBuildsCallFunctionFrame(t *testing.T) {
	client := &recordingPeer{}
	ok := SendVariantToClient(client, "OnSpawn", []any{"spawn data"}, DefaultVariantArgs())
	if !ok {
		t.Fatalf("expected true")
	}
	parsed := packet.Classify(client.frames[0])
	if parsed.ID != packet.IDOnSpawn {
		t.Fatalf("expected IDOnSpawn (unrecognized function names fall back to IDUnknown), got %v", parsed.ID)
	}
	if parsed.Function != "OnSpawn" {
		t.Fatalf("expected function name OnSpawn, got %q", parsed.Function)
	}
	if !parsed.HadTrailNUL {
		t.Fatalf("expected trailing NUL on injected call-function frame")
	}
}

func TestSendersReturnFalseWhenPeerAbsent(t *testing.T) {
	if SendLog(nil, "x") {
		t.Fatalf("expected false with nil peer")
	}
	if SendQuitToExit(nil) {
		t.Fatalf("expected false with nil peer")
	}
	if SendVariantToClient(nil, "OnSpawn", nil, DefaultVariantArgs()) {
		t.Fatalf("expected false with nil peer")
	}
}

func TestSendersLogButDoNotPanicOnTransportError(t *testing.T) {
	client := &recordingPeer{failOn: 1}
	if !SendLog(client, "x") {
		t.Fatalf("expected true even though the underlying send errored")
	}
}

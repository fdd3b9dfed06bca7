package fake

import (
	"context"
	"errors"
	"testing"

	"github.com/bennjii/reseda/internal/signaling"
)

func TestSocket_PushSendClose(t *testing.T) {
	d := NewDialer()
	sock, err := d.Dial(context.Background(), "wss://fra1.reseda.app:443/")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	s := d.Last()
	if s == nil || s.URL != "wss://fra1.reseda.app:443/" {
		t.Fatalf("Last() = %+v", s)
	}

	if err := sock.Send(signaling.Query{QueryType: signaling.QueryOpen}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !s.Push(signaling.Frame{Type: signaling.FrameUpdate, Text: "hi"}) {
		t.Fatal("Push() on open socket = false")
	}
	if f := <-sock.Frames(); f.Text != "hi" {
		t.Fatalf("frame = %+v", f)
	}

	_ = sock.Close()
	_ = sock.Close()
	if !s.Closed() {
		t.Fatal("Closed() = false after Close()")
	}
	if _, ok := <-sock.Frames(); ok {
		t.Fatal("frames channel open after Close()")
	}
	if s.Push(signaling.Frame{Type: signaling.FrameUpdate}) {
		t.Fatal("Push() on closed socket = true")
	}
	if err := sock.Send(signaling.Query{QueryType: signaling.QueryClose}); !errors.Is(err, signaling.ErrClosed) {
		t.Fatalf("Send() after Close() error = %v, want ErrClosed", err)
	}
	if got := s.Sent(); len(got) != 1 || got[0].QueryType != signaling.QueryOpen {
		t.Fatalf("Sent() = %v, want [open]", got)
	}
}

func TestDialer_Fault(t *testing.T) {
	d := NewDialer()
	injected := errors.New("refused")
	d.Faults.FailOnce(FaultDial, injected)

	if _, err := d.Dial(context.Background(), "wss://x/"); !errors.Is(err, injected) {
		t.Fatalf("Dial() error = %v, want %v", err, injected)
	}
	if len(d.Sockets()) != 0 {
		t.Fatal("failed Dial() recorded a socket")
	}
}

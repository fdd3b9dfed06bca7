package fake

import (
	"slices"
	"testing"
)

func TestCallRecorder_Record(t *testing.T) {
	var r CallRecorder

	r.record("AddPeer", "spk", "1.2.3.4")
	r.record("Up")
	r.record("AddPeer", "other", "5.6.7.8")

	if all := r.Calls(""); len(all) != 3 {
		t.Fatalf("Calls(\"\") = %d calls, want 3", len(all))
	}
	adds := r.Calls("AddPeer")
	if len(adds) != 2 {
		t.Fatalf("Calls(AddPeer) = %d calls, want 2", len(adds))
	}
	if adds[0].Args[0] != "spk" {
		t.Errorf("first AddPeer arg = %v, want spk", adds[0].Args[0])
	}
	if none := r.Calls("Down"); len(none) != 0 {
		t.Errorf("Calls(Down) = %d calls, want 0", len(none))
	}
	if got, want := r.Methods(), []string{"AddPeer", "Up", "AddPeer"}; !slices.Equal(got, want) {
		t.Errorf("Methods() = %v, want %v", got, want)
	}
}

func TestCallRecorder_Reset(t *testing.T) {
	var r CallRecorder

	r.record("Up")
	r.record("Down")
	r.Reset()

	if got := r.Calls(""); len(got) != 0 {
		t.Fatalf("Calls() after Reset() = %d calls, want 0", len(got))
	}
}

package wireguard

import (
	"testing"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

func TestKeys_GenerateAndDerive(t *testing.T) {
	ctx := t.Context()
	var keys Keys

	priv, pub, err := keys.GenerateKeyPair(ctx)
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	if len(priv) != 44 || len(pub) != 44 {
		t.Fatalf("key lengths = %d/%d, want 44", len(priv), len(pub))
	}

	got, err := keys.PublicKey(ctx, priv+"\n")
	if err != nil {
		t.Fatalf("PublicKey() error = %v", err)
	}
	if got != pub {
		t.Fatalf("PublicKey() = %q, want %q", got, pub)
	}
}

func TestKeys_KnownVector(t *testing.T) {
	k, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Keys{}.PublicKey(t.Context(), k.String())
	if err != nil {
		t.Fatal(err)
	}
	if want := k.PublicKey().String(); got != want {
		t.Fatalf("PublicKey() = %q, want %q", got, want)
	}
}

func TestKeys_InvalidPrivateKey(t *testing.T) {
	if _, err := (Keys{}).PublicKey(t.Context(), "short"); err == nil {
		t.Fatal("PublicKey() error = nil")
	}
}

package wireguard

import (
	"context"
	"fmt"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// Keys derives and generates Curve25519 key pairs in-process.
type Keys struct{}

// PublicKey returns the base64 public key for a base64 private key.
func (Keys) PublicKey(_ context.Context, privateKey string) (string, error) {
	key, err := wgtypes.ParseKey(strings.TrimSpace(privateKey))
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}
	return key.PublicKey().String(), nil
}

// GenerateKeyPair returns a fresh base64 private key and its public key.
func (Keys) GenerateKeyPair(context.Context) (string, string, error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return "", "", fmt.Errorf("generate private key: %w", err)
	}
	return priv.String(), priv.PublicKey().String(), nil
}

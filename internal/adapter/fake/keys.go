package fake

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/bennjii/reseda/internal/adapter/fake/fault"
	"github.com/bennjii/reseda/internal/connection"
)

var _ connection.KeyProvider = (*Keys)(nil)

const (
	FaultKeysPublicKey = "keys.public_key"
	FaultKeysGenerate  = "keys.generate"
)

// Keys derives predictable public keys. Like the privileged helper, the
// derived key is returned with a trailing newline after the padding.
type Keys struct {
	CallRecorder
	Faults *fault.Injector

	generated atomic.Int64
}

func NewKeys() *Keys {
	return &Keys{Faults: fault.NewInjector()}
}

// Derive returns the public key Keys reports for priv, without the trailing
// newline.
func Derive(priv string) string {
	return "pub-" + strings.TrimRight(strings.TrimSpace(priv), "=") + "="
}

func (k *Keys) PublicKey(ctx context.Context, privateKey string) (string, error) {
	k.record("PublicKey", privateKey)
	if err := k.Faults.Eval(FaultKeysPublicKey, privateKey); err != nil {
		return "", err
	}
	return Derive(privateKey) + "\n", nil
}

func (k *Keys) GenerateKeyPair(ctx context.Context) (string, string, error) {
	k.record("GenerateKeyPair")
	if err := k.Faults.Eval(FaultKeysGenerate); err != nil {
		return "", "", err
	}
	priv := fmt.Sprintf("priv-%d=", k.generated.Add(1))
	return priv, Derive(priv), nil
}

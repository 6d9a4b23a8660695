package signature

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/keyrelay/migration-server/internal/model"
)

var _ model.SignatureVerifier = (*Ed25519Verifier)(nil)

// Ed25519Verifier verifies ed25519 signatures. Public keys may be the raw
// 32-byte form or its base64 encoding (standard or URL alphabet), which is
// how clients ship keys over JSON.
type Ed25519Verifier struct{}

func NewEd25519Verifier() *Ed25519Verifier {
	return &Ed25519Verifier{}
}

func (v *Ed25519Verifier) Verify(publicKey, challenge, signature []byte) (bool, error) {
	key, err := normalizeKey(publicKey)
	if err != nil {
		return false, err
	}

	if len(signature) != ed25519.SignatureSize {
		if decoded, decErr := decodeBase64(string(signature)); decErr == nil && len(decoded) == ed25519.SignatureSize {
			signature = decoded
		} else {
			return false, nil
		}
	}

	return ed25519.Verify(key, challenge, signature), nil
}

func normalizeKey(publicKey []byte) (ed25519.PublicKey, error) {
	if len(publicKey) == ed25519.PublicKeySize {
		return ed25519.PublicKey(publicKey), nil
	}

	decoded, err := decodeBase64(string(publicKey))
	if err != nil || len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("malformed ed25519 public key of length %d", len(publicKey))
	}

	return ed25519.PublicKey(decoded), nil
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("not valid base64")
}

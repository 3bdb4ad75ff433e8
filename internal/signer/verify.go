package signer

import (
	"bytes"
	"fmt"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// GPGVerifier implements Verifier against a public key ring
type GPGVerifier struct {
	keyring openpgp.EntityList
}

// NewGPGVerifier creates a verifier from an armored or binary public key file
func NewGPGVerifier(keyringPath string) (*GPGVerifier, error) {
	if keyringPath == "" {
		return nil, fmt.Errorf("keyring path is empty")
	}

	entityList, err := readKeyRing(keyringPath)
	if err != nil {
		return nil, err
	}
	return &GPGVerifier{keyring: entityList}, nil
}

// VerifyDetached checks an armored detached signature over data
func (v *GPGVerifier) VerifyDetached(data, signature []byte) error {
	if len(signature) == 0 {
		return fmt.Errorf("signature is empty")
	}

	signerEntity, err := openpgp.CheckArmoredDetachedSignature(v.keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	if signerEntity == nil {
		return fmt.Errorf("signature verification failed: unknown signer")
	}
	return nil
}

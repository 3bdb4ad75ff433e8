package signer

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ralt/extmgr/internal/utils"
)

// Key file names written by GenerateKeyPair
const (
	PrivateKeyFile = "extmgr-private.asc"
	PublicKeyFile  = "extmgr-public.asc"
)

// GenerateKeyPair creates an unencrypted signing key and writes the armored
// private and public keys into dir
func GenerateKeyPair(name, email, dir string) (privatePath, publicPath string, err error) {
	entity, err := openpgp.NewEntity(name, "extension repository signing key", email, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate key: %w", err)
	}

	var priv bytes.Buffer
	serializePrivate := func(w io.Writer) error { return entity.SerializePrivate(w, nil) }
	if err := writeArmored(&priv, openpgp.PrivateKeyType, serializePrivate); err != nil {
		return "", "", fmt.Errorf("failed to serialize private key: %w", err)
	}

	pub, err := (&GPGSigner{entity: entity}).GetPublicKey()
	if err != nil {
		return "", "", fmt.Errorf("failed to serialize public key: %w", err)
	}

	if err := utils.EnsureDir(dir); err != nil {
		return "", "", err
	}
	privatePath = filepath.Join(dir, PrivateKeyFile)
	if err := utils.WriteFile(privatePath, priv.Bytes(), 0600); err != nil {
		return "", "", err
	}
	publicPath = filepath.Join(dir, PublicKeyFile)
	if err := utils.WriteFile(publicPath, pub, 0644); err != nil {
		return "", "", err
	}

	return privatePath, publicPath, nil
}

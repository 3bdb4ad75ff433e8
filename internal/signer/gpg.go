package signer

import (
	"bytes"
	"crypto"
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// signConfig is shared by every signature of the index files
var signConfig = &packet.Config{DefaultHash: crypto.SHA512}

// GPGSigner signs repository index files with an OpenPGP private key
type GPGSigner struct {
	entity *openpgp.Entity
}

// NewGPGSigner loads the first private key found in keyPath, decrypting it
// and its subkeys with passphrase when they are encrypted
func NewGPGSigner(keyPath, passphrase string) (*GPGSigner, error) {
	if keyPath == "" {
		return nil, fmt.Errorf("key path is empty")
	}

	entities, err := readKeyRing(keyPath)
	if err != nil {
		return nil, err
	}

	var entity *openpgp.Entity
	for _, e := range entities {
		if e.PrivateKey != nil {
			entity = e
			break
		}
	}
	if entity == nil {
		return nil, fmt.Errorf("%s holds no private key", keyPath)
	}

	if err := decryptKey(entity.PrivateKey, passphrase); err != nil {
		return nil, fmt.Errorf("failed to decrypt private key: %w", err)
	}
	for _, sub := range entity.Subkeys {
		if err := decryptKey(sub.PrivateKey, passphrase); err != nil {
			return nil, fmt.Errorf("failed to decrypt subkey: %w", err)
		}
	}

	return &GPGSigner{entity: entity}, nil
}

func decryptKey(key *packet.PrivateKey, passphrase string) error {
	if key == nil || !key.Encrypted {
		return nil
	}
	if passphrase == "" {
		return fmt.Errorf("key %X is encrypted and no passphrase was given", key.KeyId)
	}
	return key.Decrypt([]byte(passphrase))
}

// SignCleartext wraps data in a cleartext signature (InExtensions)
func (s *GPGSigner) SignCleartext(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, s.entity.PrivateKey, signConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return buf.Bytes(), nil
}

// SignDetached creates an armored detached signature (Extensions.gpg)
func (s *GPGSigner) SignDetached(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&buf, s.entity, bytes.NewReader(data), signConfig); err != nil {
		return nil, fmt.Errorf("failed to create detached signature: %w", err)
	}
	return buf.Bytes(), nil
}

// GetPublicKey returns the armored public key clients put in their keyring
func (s *GPGSigner) GetPublicKey() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeArmored(&buf, openpgp.PublicKeyType, s.entity.Serialize); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeArmored armors whatever serialize writes
func writeArmored(out io.Writer, blockType string, serialize func(io.Writer) error) error {
	w, err := armor.Encode(out, blockType, nil)
	if err != nil {
		return err
	}
	if err := serialize(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// readKeyRing loads an armored or binary OpenPGP key ring from path
func readKeyRing(path string) (openpgp.EntityList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file: %w", err)
	}

	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		entities, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to read key: %w", err)
		}
	}

	if len(entities) == 0 {
		return nil, fmt.Errorf("no keys found in %s", path)
	}
	return entities, nil
}

package signer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestKeys generates a key pair into dir
func writeTestKeys(t *testing.T, dir string) (privatePath, publicPath string) {
	t.Helper()
	privatePath, publicPath, err := GenerateKeyPair("extmgr test", "test@example.org", dir)
	require.NoError(t, err)
	return privatePath, publicPath
}

func TestSignAndVerifyDetached(t *testing.T) {
	dir := t.TempDir()
	privatePath, publicPath := writeTestKeys(t, dir)

	s, err := NewGPGSigner(privatePath, "")
	require.NoError(t, err)
	v, err := NewGPGVerifier(publicPath)
	require.NoError(t, err)

	data := []byte("Extension: news\nVersion: 1.0.0\n")
	sig, err := s.SignDetached(data)
	require.NoError(t, err)

	assert.NoError(t, v.VerifyDetached(data, sig))
	assert.Error(t, v.VerifyDetached([]byte("tampered"), sig))
	assert.Error(t, v.VerifyDetached(data, nil))
}

func TestSignCleartextContainsMessage(t *testing.T) {
	privatePath, _ := writeTestKeys(t, t.TempDir())
	s, err := NewGPGSigner(privatePath, "")
	require.NoError(t, err)

	out, err := s.SignCleartext([]byte("Extension: news"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "-----BEGIN PGP SIGNED MESSAGE-----")
	assert.Contains(t, string(out), "Extension: news\n")
	assert.Contains(t, string(out), "-----BEGIN PGP SIGNATURE-----")

	block, _ := clearsign.Decode(out)
	require.NotNil(t, block)
	assert.Contains(t, string(block.Plaintext), "Extension: news")
}

func TestNewGPGSignerRequiresPrivateKey(t *testing.T) {
	_, publicPath := writeTestKeys(t, t.TempDir())

	_, err := NewGPGSigner(publicPath, "")
	assert.ErrorContains(t, err, "holds no private key")
}

func TestNewGPGVerifierErrors(t *testing.T) {
	_, err := NewGPGVerifier("")
	assert.Error(t, err)

	_, err = NewGPGVerifier(filepath.Join(t.TempDir(), "missing.asc"))
	assert.Error(t, err)
}

func TestGenerateKeyPairPermissions(t *testing.T) {
	privatePath, publicPath := writeTestKeys(t, t.TempDir())

	info, err := os.Stat(privatePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	pub, err := os.ReadFile(publicPath)
	require.NoError(t, err)
	assert.Contains(t, string(pub), "BEGIN PGP PUBLIC KEY BLOCK")
}

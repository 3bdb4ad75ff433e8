package signer

// Signer interface for signing repository index files
type Signer interface {
	// SignCleartext creates a cleartext signature (for InExtensions)
	SignCleartext(data []byte) ([]byte, error)

	// SignDetached creates a detached signature (for Extensions.gpg)
	SignDetached(data []byte) ([]byte, error)

	// GetPublicKey returns the public key
	GetPublicKey() ([]byte, error)
}

// Verifier interface for checking signatures of downloaded index files
type Verifier interface {
	// VerifyDetached checks an armored detached signature over data
	VerifyDetached(data, signature []byte) error
}

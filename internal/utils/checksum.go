package utils

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// Checksum contains the digests recorded for an extension archive
type Checksum struct {
	SHA256 string
	SHA512 string
	Size   int64
}

// CalculateChecksums calculates all checksums for a file in a single pass
func CalculateChecksums(path string) (*Checksum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return checksumReader(f)
}

// ChecksumBytes calculates all checksums for an in-memory archive
func ChecksumBytes(data []byte) *Checksum {
	// Reading from a byte slice never fails
	sum, _ := checksumReader(bytes.NewReader(data))
	return sum
}

func checksumReader(r io.Reader) (*Checksum, error) {
	sha256Hash := sha256.New()
	sha512Hash := sha512.New()

	// Use MultiWriter to calculate all hashes at once
	multiWriter := io.MultiWriter(sha256Hash, sha512Hash)

	size, err := io.Copy(multiWriter, r)
	if err != nil {
		return nil, err
	}

	return &Checksum{
		SHA256: hex.EncodeToString(sha256Hash.Sum(nil)),
		SHA512: hex.EncodeToString(sha512Hash.Sum(nil)),
		Size:   size,
	}, nil
}

// VerifySHA256 compares the SHA-256 digest of data with expected.
// An empty expected digest is accepted.
func VerifySHA256(data []byte, expected string) error {
	if expected == "" {
		return nil
	}
	actual := ChecksumBytes(data).SHA256
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("sha256 mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}

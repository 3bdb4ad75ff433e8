package models

// IndexConfig contains configuration for repository index generation
type IndexConfig struct {
	// Input/Output
	InputDir  string
	OutputDir string

	// Index metadata
	Origin string
	Label  string

	// Signing
	GPGKeyPath    string
	GPGPassphrase string

	// Incremental mode
	Incremental bool // Keep extensions of an existing index that are not in InputDir
}

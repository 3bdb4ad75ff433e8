package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/ralt/extmgr/internal/downloader"
	"github.com/ralt/extmgr/internal/index"
	"github.com/ralt/extmgr/internal/messages"
	"github.com/ralt/extmgr/internal/models"
	"github.com/ralt/extmgr/internal/signer"
	"github.com/ralt/extmgr/internal/utils"
	"github.com/sirupsen/logrus"
)

const defaultCacheTTL = 5 * time.Minute

// Remote is a Repository backed by a published index, cached for a TTL
type Remote struct {
	source   downloader.Source
	verifier signer.Verifier
	cacheTTL time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	cached    *Index
	fetchedAt time.Time
}

// RemoteOption configures a Remote
type RemoteOption func(*Remote)

// WithVerifier requires a valid detached signature for the index
func WithVerifier(v signer.Verifier) RemoteOption {
	return func(r *Remote) {
		r.verifier = v
	}
}

// WithCacheTTL sets how long a loaded index is reused; 0 disables caching
func WithCacheTTL(d time.Duration) RemoteOption {
	return func(r *Remote) {
		r.cacheTTL = d
	}
}

// NewRemote creates a Remote reading the index from source
func NewRemote(source downloader.Source, opts ...RemoteOption) *Remote {
	r := &Remote{
		source:   source,
		cacheTTL: defaultCacheTTL,
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Load returns the index, fetching it when the cache is empty or stale
func (r *Remote) Load(ctx context.Context) (*Index, error) {
	if r.cacheTTL > 0 {
		r.mu.RLock()
		if r.cached != nil && r.now().Before(r.fetchedAt.Add(r.cacheTTL)) {
			idx := r.cached
			r.mu.RUnlock()
			return idx, nil
		}
		r.mu.RUnlock()
	}

	data, err := r.fetchIndex(ctx)
	if err != nil {
		return nil, err
	}

	if r.verifier != nil {
		sig, err := r.source.Read(ctx, index.SignatureFile)
		if err != nil {
			return nil, models.NewError(models.ErrSigning, "", 0, messages.RepositorySignatureFmt, err)
		}
		if err := r.verifier.VerifyDetached(data, sig); err != nil {
			return nil, models.NewError(models.ErrSigning, "", 0, messages.RepositorySignatureFmt, err)
		}
	}

	packages, err := index.ParseControl(bytes.NewReader(data))
	if err != nil {
		return nil, models.NewError(models.ErrIndexParse, "", 0, "failed to parse %s: %w", index.IndexFile, err)
	}
	idx, err := NewIndex(packages)
	if err != nil {
		return nil, err
	}

	logrus.Debugf("Loaded %d extension versions from %s", idx.Len(), r.source.Location())

	if r.cacheTTL > 0 {
		r.mu.Lock()
		r.cached = idx
		r.fetchedAt = r.now()
		r.mu.Unlock()
	}
	return idx, nil
}

// Invalidate drops the cached index
func (r *Remote) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
}

// fetchIndex tries the compressed variants first and falls back to the
// plain index
func (r *Remote) fetchIndex(ctx context.Context) ([]byte, error) {
	for _, c := range index.IndexCompressions {
		name := index.IndexFile + c.Extension()
		data, err := r.source.Read(ctx, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf(messages.RepositoryFetchFmt, name, err)
		}
		plain, err := utils.Decompress(data)
		if err != nil {
			return nil, models.NewError(models.ErrIndexParse, "", 0, "failed to decompress %s: %w", name, err)
		}
		return plain, nil
	}

	data, err := r.source.Read(ctx, index.IndexFile)
	if err != nil {
		return nil, fmt.Errorf(messages.RepositoryFetchFmt, index.IndexFile, err)
	}
	return data, nil
}

// FindOneByKeyAndVersion implements Repository
func (r *Remote) FindOneByKeyAndVersion(ctx context.Context, key, version string) (models.Package, error) {
	idx, err := r.Load(ctx)
	if err != nil {
		return models.Package{}, err
	}
	return idx.FindOneByKeyAndVersion(ctx, key, version)
}

// FindHighestAvailableVersion implements Repository
func (r *Remote) FindHighestAvailableVersion(ctx context.Context, key string) (models.Package, error) {
	idx, err := r.Load(ctx)
	if err != nil {
		return models.Package{}, err
	}
	return idx.FindHighestAvailableVersion(ctx, key)
}

// FindByVersionRange implements Repository
func (r *Remote) FindByVersionRange(ctx context.Context, key, start, stop string) ([]models.Package, error) {
	idx, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	return idx.FindByVersionRange(ctx, key, start, stop)
}

// FindByKey implements Repository
func (r *Remote) FindByKey(ctx context.Context, key string) ([]models.Package, error) {
	idx, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	return idx.FindByKey(ctx, key)
}

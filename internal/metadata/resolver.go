package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"nftcred/internal/domain"
	"nftcred/internal/observability"
)

const (
	// DefaultFetchTimeout bounds a single metadata fetch.
	DefaultFetchTimeout = 10 * time.Second

	// maxMetadataSize caps the response body read per token.
	maxMetadataSize = 1 << 20

	ipfsGateway    = "https://ipfs.io/ipfs/"
	arweaveGateway = "https://arweave.net/"
)

// NormalizeURI rewrites content-addressed schemes to public HTTP
// gateways. Plain http(s) URIs pass through unchanged.
func NormalizeURI(uri string) string {
	switch {
	case strings.HasPrefix(uri, "ipfs://"):
		return ipfsGateway + strings.TrimPrefix(uri, "ipfs://")
	case strings.HasPrefix(uri, "ar://"):
		return arweaveGateway + strings.TrimPrefix(uri, "ar://")
	default:
		return uri
	}
}

// Resolver fetches and parses token metadata documents. A token whose
// metadata cannot be fetched or parsed resolves to nil rather than an
// error; the caller drops it from results.
type Resolver struct {
	httpClient *http.Client
	cache      Cache
	logger     *zap.Logger
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// HTTPClient used for gateway fetches. Defaults to a client with
	// DefaultFetchTimeout.
	HTTPClient *http.Client
	// Cache for resolved documents. Nil disables caching.
	Cache Cache
	Logger *zap.Logger
}

// NewResolver creates a metadata resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultFetchTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		httpClient: httpClient,
		cache:      opts.Cache,
		logger:     logger,
	}
}

// Resolve fetches the metadata document behind uri. The image field is
// rewritten through the same gateway normalization as the document URI.
// Returns (nil, nil) when the document is unavailable or malformed;
// the only error returned is context cancellation.
func (r *Resolver) Resolve(ctx context.Context, uri string) (domain.TokenMetadata, error) {
	normalized := NormalizeURI(uri)

	if r.cache != nil {
		if meta, ok := r.cacheGet(ctx, normalized); ok {
			observability.RecordMetadataResolution("hit")
			return meta, nil
		}
	}

	meta, err := r.fetch(ctx, normalized)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		observability.RecordMetadataResolution("failed")
		r.logger.Debug("metadata fetch failed",
			zap.String("uri", normalized),
			zap.Error(err))
		return nil, nil
	}
	observability.RecordMetadataResolution("fetched")

	if image := meta.Image(); image != "" {
		meta.SetImage(NormalizeURI(image))
	}

	if r.cache != nil {
		r.cacheSet(ctx, normalized, meta)
	}
	return meta, nil
}

func (r *Resolver) fetch(ctx context.Context, uri string) (domain.TokenMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var meta domain.TokenMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	if meta == nil {
		return nil, fmt.Errorf("parse metadata: null document")
	}
	return meta, nil
}

func (r *Resolver) cacheGet(ctx context.Context, uri string) (domain.TokenMetadata, bool) {
	meta, err := r.cache.Get(ctx, uri)
	if err != nil || meta == nil {
		// Cache failures degrade to a direct fetch
		return nil, false
	}
	return meta, true
}

func (r *Resolver) cacheSet(ctx context.Context, uri string, meta domain.TokenMetadata) {
	if err := r.cache.Set(ctx, uri, meta); err != nil {
		r.logger.Debug("metadata cache write failed",
			zap.String("uri", uri),
			zap.Error(err))
	}
}

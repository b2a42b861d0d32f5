package metadata

import (
	"context"
	"log/slog"

	"scrobbled/internal/logging"
	"scrobbled/internal/mbcache"
	"scrobbled/internal/media"
	"scrobbled/internal/musicbrainz"
)

// Service is the write-through resolution path: cache first, resolver
// on a miss, and every resolver outcome (resolved or not) written back
// so known-unresolvable tracks are not re-queried until their cache
// entry expires.
type Service struct {
	cache      *mbcache.Cache
	resolver   musicbrainz.Resolver
	enrichment bool
	logger     *slog.Logger
}

// NewService wires the cache and resolver together. When enrichment is
// disabled every identification returns an unresolved set without
// touching cache or network.
func NewService(cache *mbcache.Cache, resolver musicbrainz.Resolver, enrichment bool, logger *slog.Logger) *Service {
	return &Service{
		cache:      cache,
		resolver:   resolver,
		enrichment: enrichment,
		logger:     logging.NewComponentLogger(logger, "metadata"),
	}
}

// Enabled reports whether identifier enrichment is active.
func (s *Service) Enabled() bool {
	return s.enrichment
}

// Identify returns the identifier set for a track. A cache hit is
// served without network I/O.
func (s *Service) Identify(ctx context.Context, track media.Track) media.IdentifierSet {
	if !s.enrichment {
		return media.IdentifierSet{Source: media.SourceNone}
	}

	if !track.Valid() {
		return media.IdentifierSet{Source: media.SourceNone}
	}

	fingerprint := track.Fingerprint()
	if cached, found := s.cache.Get(fingerprint); found {
		s.logger.Debug("identifier cache hit",
			logging.String(logging.FieldFingerprint, string(fingerprint)),
			logging.String("source", string(cached.Source)))
		return cached
	}

	resolved := s.resolver.Resolve(ctx, track)
	s.cache.Put(fingerprint, resolved)

	s.logger.Debug("identifiers resolved",
		logging.String(logging.FieldFingerprint, string(fingerprint)),
		logging.String("source", string(resolved.Source)),
		logging.Bool("resolved", resolved.Resolved()))

	return resolved
}

// Cached returns the cache entry for a track without resolving.
func (s *Service) Cached(track media.Track) (media.IdentifierSet, bool) {
	if !s.enrichment {
		return media.IdentifierSet{}, false
	}
	return s.cache.Get(track.Fingerprint())
}

// CacheStats exposes cache contents for inspection surfaces.
func (s *Service) CacheStats() mbcache.Stats {
	return s.cache.Stats()
}

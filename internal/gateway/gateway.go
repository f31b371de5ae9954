// Package gateway wires the trust-and-throughput pipeline for the
// government data API: credential authentication, permission checks,
// dual-window rate limiting, and response caching, in that order.
package gateway

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/careconnect/data-gateway/internal/apikey"
	"github.com/careconnect/data-gateway/internal/cache"
	"github.com/careconnect/data-gateway/internal/middleware"
	"github.com/careconnect/data-gateway/internal/ratelimit"
)

// BasePath prefixes every government data route.
const BasePath = "/api/v1/government"

// dataResources maps resource paths to the permission they require.
var dataResources = []string{"volunteers", "ngos", "campaigns", "events", "communities", "stories"}

// PipelineConfig carries the pipeline's collaborators.
type PipelineConfig struct {
	Validator *apikey.Validator
	Limiter   ratelimit.Limiter
	Profile   *ratelimit.CostProfile
	Cache     cache.Store
	CacheTTL  time.Duration
	Fetcher   DataFetcher
	Logger    *zap.Logger
}

// Pipeline is the assembled data-plane handler.
type Pipeline struct {
	cfg      PipelineConfig
	handlers *DataHandlers
}

// NewPipeline assembles the data plane from its collaborators.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Profile == nil {
		cfg.Profile = ratelimit.DefaultCostProfile()
	}
	return &Pipeline{
		cfg:      cfg,
		handlers: NewDataHandlers(cfg.Fetcher, cfg.Logger),
	}
}

// Handler returns the routed data plane. Every government route passes
// versioning and authentication; the permission check runs before rate
// limiting, so a denied request never consumes quota. Cache is attached
// per route, innermost.
func (p *Pipeline) Handler() http.Handler {
	authed := middleware.Chain(
		Versioning(),
		Authenticate(p.cfg.Validator, p.cfg.Logger),
	)
	limited := RateLimit(p.cfg.Limiter, p.cfg.Profile, p.cfg.Logger)
	cached := ResponseCache(p.cfg.Cache, p.cfg.CacheTTL, p.cfg.Logger)

	mux := http.NewServeMux()
	mux.Handle("/api/version", VersionInfoHandler())

	// Unmatched API paths still pass version handling so removed
	// versions answer 410 instead of a bare 404.
	mux.Handle("/api/", Versioning()(http.NotFoundHandler()))

	mux.Handle(BasePath+"/test", authed(limited(p.handlers.Test())))
	mux.Handle(BasePath+"/stats", authed(
		RequirePermission(apikey.ReadPermission("reports"))(
			limited(cached(p.handlers.Stats(dataResources))))))

	for _, resource := range dataResources {
		mux.Handle(BasePath+"/"+resource, authed(
			RequirePermission(apikey.ReadPermission(resource))(
				limited(cached(p.handlers.Resource(resource))))))
	}

	return mux
}

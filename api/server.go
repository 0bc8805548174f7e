package api

import (
	"context"
	"plugin-store/catalog"
	"plugin-store/metrics"
	"plugin-store/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Options holds the HTTP facing settings of the server.
type Options struct {
	SubmitKey      string
	CORSOrigin     string
	TrustedProxies []string
}

// ReadinessCheck reports whether a backing dependency can serve requests.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	service *catalog.Service
	limiter ratelimit.Limiter
	metrics *metrics.Collector
	opts    Options
	checks  []ReadinessCheck
}

func NewServer(
	service *catalog.Service,
	limiter ratelimit.Limiter,
	collector *metrics.Collector,
	opts Options,
	checks ...ReadinessCheck,
) *Server {
	if collector == nil {
		collector = metrics.New()
	}

	return &Server{
		service: service,
		limiter: limiter,
		metrics: collector,
		opts:    opts,
		checks:  checks,
	}
}

// Engine builds a gin engine with every route registered.
func (s *Server) Engine() *gin.Engine {
	engine := gin.New()
	if err := engine.SetTrustedProxies(s.opts.TrustedProxies); err != nil {
		log.Warn().Err(err).Msg("invalid trusted proxies, trusting none")
		_ = engine.SetTrustedProxies(nil)
	}
	engine.Use(gin.Recovery(), requestLogger(), s.metrics.Middleware(), corsMiddleware(s.opts.CORSOrigin))
	s.Register(engine)

	return engine
}

func (s *Server) Register(r *gin.Engine) {
	r.GET("/", s.index)
	r.GET("/healthz", s.healthz)
	r.GET("/readyz", s.readyz)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	r.GET("/plugins", s.listPlugins)
	r.POST("/plugins/:name/versions/:version/increment", s.incrementInstalls)
	r.GET("/v1/announcements/-/current", s.currentAnnouncements)

	admin := r.Group("/", requireAuth(s.opts.SubmitKey))
	admin.POST("/__auth", s.checkAuth)
	admin.POST("/__submit", s.submitPlugin)
	admin.POST("/__update", s.updatePlugin)
	admin.POST("/__delete", s.deletePlugin)

	announcements := r.Group("/v1/announcements", requireAuth(s.opts.SubmitKey))
	announcements.GET("", s.listAnnouncements)
	announcements.POST("", s.createAnnouncement)
	announcements.GET("/:id", s.getAnnouncement)
	announcements.PUT("/:id", s.updateAnnouncement)
	announcements.DELETE("/:id", s.deleteAnnouncement)
}

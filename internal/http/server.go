// Package http exposes the assistant over gin: chat REST and WebSocket
// endpoints, passcode login, telephony webhooks and operational routes.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"hospital-assistant/internal/core"
	"hospital-assistant/internal/db"
	"hospital-assistant/internal/metrics"
	"hospital-assistant/internal/ratelimit"
	"hospital-assistant/internal/voice"
	"hospital-assistant/pkg"
)

// AuditLister reads tool invocation records.
type AuditLister interface {
	ListToolInvocations(ctx context.Context, f db.AuditFilter) ([]pkg.ToolInvocation, error)
}

// Config carries the transport settings.
type Config struct {
	APIRateLimit   int
	VoiceRateLimit int
	RateWindow     time.Duration
	// PublicBaseURL prefixes webhook URLs in TwiML and is the URL Twilio
	// signs. Empty yields relative URLs.
	PublicBaseURL   string
	TwilioAuthToken string
	AdminJWTSecret  string
}

// Deps are the components the handlers call.
type Deps struct {
	Orchestrator *core.Orchestrator
	Voice        *voice.Machine
	Audit        AuditLister
	Metrics      *metrics.Collector
	Log          *logrus.Logger
	// LLMReady and KnowledgeDocs feed the health report.
	LLMReady      bool
	KnowledgeDocs func() int
}

// Server holds the handler dependencies.
type Server struct {
	cfg          Config
	orch         *core.Orchestrator
	voice        *voice.Machine
	audit        AuditLister
	metrics      *metrics.Collector
	log          logrus.FieldLogger
	apiLimiter   *ratelimit.Limiter
	voiceLimiter *ratelimit.Limiter
	llmReady     bool
	docs         func() int
}

// NewServer constructs a Server.
func NewServer(cfg Config, d Deps) *Server {
	docs := d.KnowledgeDocs
	if docs == nil {
		docs = func() int { return 0 }
	}
	return &Server{
		cfg:          cfg,
		orch:         d.Orchestrator,
		voice:        d.Voice,
		audit:        d.Audit,
		metrics:      d.Metrics,
		log:          d.Log.WithField("component", "http"),
		apiLimiter:   ratelimit.New(cfg.APIRateLimit, cfg.RateWindow),
		voiceLimiter: ratelimit.New(cfg.VoiceRateLimit, cfg.RateWindow),
		llmReady:     d.LLMReady,
		docs:         docs,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", s.handleMetrics)

	api := r.Group("/", s.rateLimit(s.apiLimiter, clientIP))
	api.POST("/chat", s.handleChat)
	api.POST("/auth/login", s.handleLogin)
	api.POST("/auth/verify-otp", s.handleVerifyOTP)

	r.GET("/ws/chat", s.handleWebSocket)

	hooks := r.Group("/voice", s.twilioSignature(), s.rateLimit(s.voiceLimiter, caller))
	hooks.POST("/incoming", s.handleVoiceIncoming)
	hooks.POST("/respond", s.handleVoiceTurn)
	hooks.POST("/login-input", s.handleVoiceTurn)
	hooks.POST("/verify-otp", s.handleVoiceTurn)
	hooks.POST("/status", s.handleVoiceStatus)

	admin := r.Group("/admin", s.adminAuth())
	admin.GET("/audit", s.handleAudit)
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"service":         "City General Hospital Assistant",
		"llm_ready":       s.llmReady,
		"rag_ready":       s.docs() > 0,
		"active_sessions": s.orch.Sessions().Len(),
		"active_calls":    s.voice.Len(),
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

// SweepLimiters drops idle rate-limit buckets and returns how many were
// removed.
func (s *Server) SweepLimiters() int {
	return s.apiLimiter.Sweep() + s.voiceLimiter.Sweep()
}

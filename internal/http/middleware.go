package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go/client"

	"hospital-assistant/internal/metrics"
	"hospital-assistant/internal/ratelimit"
)

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("request")
	}
}

func clientIP(c *gin.Context) string { return c.ClientIP() }

// caller keys voice webhooks by the calling number.
func caller(c *gin.Context) string {
	if from := c.PostForm("From"); from != "" {
		return from
	}
	return "unknown"
}

// rateLimit rejects requests over the limiter's window with 429.
func (s *Server) rateLimit(l *ratelimit.Limiter, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.Allow(key(c)) {
			c.Next()
			return
		}
		s.metrics.Inc(metrics.RateLimitedTotal)
		s.log.WithField("path", c.FullPath()).Warn("rate limit exceeded")
		c.Header("Retry-After", "60")
		sendProblem(c, http.StatusTooManyRequests, "Too many requests. Please slow down.")
	}
}

// twilioSignature checks X-Twilio-Signature against the public URL of the
// request. It is a no-op without an auth token.
func (s *Server) twilioSignature() gin.HandlerFunc {
	if s.cfg.TwilioAuthToken == "" {
		return func(c *gin.Context) { c.Next() }
	}
	validator := client.NewRequestValidator(s.cfg.TwilioAuthToken)
	return func(c *gin.Context) {
		sig := c.GetHeader("X-Twilio-Signature")
		if sig == "" {
			s.log.WithField("path", c.Request.URL.Path).Warn("missing twilio signature")
			sendProblem(c, http.StatusForbidden, "Missing Twilio signature")
			return
		}
		if err := c.Request.ParseForm(); err != nil {
			sendProblem(c, http.StatusBadRequest, "invalid form body")
			return
		}
		params := make(map[string]string, len(c.Request.PostForm))
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		if !validator.Validate(s.publicURL(c), params, sig) {
			s.log.WithField("path", c.Request.URL.Path).Warn("invalid twilio signature")
			sendProblem(c, http.StatusForbidden, "Invalid Twilio signature")
			return
		}
		c.Next()
	}
}

func (s *Server) publicURL(c *gin.Context) string {
	u := c.Request.URL.RequestURI()
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + u
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + u
}

// AdminIssuer is the issuer of admin tokens.
const AdminIssuer = "hospital-assistant"

var errAdminToken = errors.New("invalid admin token")

// IssueAdminToken signs a short-lived HS256 admin token.
func IssueAdminToken(secret string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("admin secret is not configured")
	}
	claims := jwt.RegisteredClaims{
		Issuer:    AdminIssuer,
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseAdminToken(secret, token string) (*jwt.RegisteredClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(AdminIssuer),
		jwt.WithExpirationRequired(),
	)
	claims := &jwt.RegisteredClaims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, errors.Join(errAdminToken, err)
	}
	return claims, nil
}

// adminAuth requires a bearer admin token. Without a secret the admin routes
// are disabled.
func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminJWTSecret == "" {
			sendProblem(c, http.StatusServiceUnavailable, "admin API is disabled")
			return
		}
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			sendProblem(c, http.StatusUnauthorized, "Authorization header missing or malformed")
			return
		}
		claims, err := parseAdminToken(s.cfg.AdminJWTSecret, strings.TrimSpace(token))
		if err != nil {
			s.log.WithError(err).Warn("admin token rejected")
			sendProblem(c, http.StatusUnauthorized, errAdminToken.Error())
			return
		}
		c.Set("admin_subject", claims.Subject)
		c.Next()
	}
}

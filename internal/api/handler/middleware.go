package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/audit"
	"github.com/PNWBNW/Proven-National-Worker/internal/identity"
)

// MaxBodyBytes caps every request body.
const MaxBodyBytes = 1 << 20

// SecurityHeaders sets the standard hardening headers on every response.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// BodyLimit rejects request bodies larger than n bytes.
func BodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

// Timeout bounds the request context. Handlers pass it to every service call.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogger returns a Gin middleware that logs each request with zap.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if claims := identity.ClaimsFromCtx(c); claims != nil {
			fields = append(fields, zap.String("operator", claims.Name))
		}
		logger.Info("request", fields...)
	}
}

// auth returns the role middleware when tokens are configured, or a no-op
// for development and tests.
func auth(tokens *identity.TokenIssuer, roles ...identity.Role) gin.HandlerFunc {
	if tokens == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return identity.RequireRole(tokens, roles...)
}

// requestCtx returns the request context tagged with the calling operator
// so audit entries record who acted.
func requestCtx(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if claims := identity.ClaimsFromCtx(c); claims != nil {
		return audit.WithActor(ctx, claims.Name)
	}
	return ctx
}

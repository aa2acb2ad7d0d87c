package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"custodial-wallet-engine/internal/core/ports"
	"custodial-wallet-engine/pkg/apperror"
	"custodial-wallet-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// Header names for gateway HMAC authentication
	HeaderSignature = "X-Gateway-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
	HeaderRequestID = "X-Request-ID"

	// DefaultTimestampWindow is the allowed clock drift when none is configured.
	DefaultTimestampWindow = 60 * time.Second

	// nonceScope namespaces gateway nonces in the nonce store.
	nonceScope = "gateway"

	// Context keys
	CtxRequestID = "request_id"
	CtxUserID    = "user_id"
)

// HMACAuth verifies that a request was signed by the chat gateway with the shared secret.
// Pipeline: check timestamp -> check nonce -> verify signature.
func HMACAuth(
	secret string,
	window time.Duration,
	sigSvc ports.SignatureService,
	nonceStore ports.NonceStore,
	log zerolog.Logger,
) gin.HandlerFunc {
	if window <= 0 {
		window = DefaultTimestampWindow
	}
	nonceTTL := 2 * window

	return func(c *gin.Context) {
		signature := c.GetHeader(HeaderSignature)
		timestampStr := c.GetHeader(HeaderTimestamp)
		nonce := c.GetHeader(HeaderNonce)

		if signature == "" || timestampStr == "" || nonce == "" {
			response.AbortError(c, apperror.ErrInvalidSignature())
			return
		}

		// Step 1: Timestamp check
		timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
		if err != nil {
			response.AbortError(c, apperror.ErrTimestampExpired())
			return
		}
		drift := time.Since(time.Unix(timestamp, 0))
		if drift < 0 {
			drift = -drift
		}
		if drift > window {
			response.AbortError(c, apperror.ErrTimestampExpired())
			return
		}

		// Step 2: Nonce check
		isNew, err := nonceStore.CheckAndSet(c.Request.Context(), nonceScope, nonce, nonceTTL)
		if err != nil {
			log.Warn().Err(err).Msg("nonce store error, allowing request")
		} else if !isNew {
			response.AbortError(c, apperror.ErrNonceUsed())
			return
		}

		// Step 3: Signature verification
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.AbortError(c, apperror.Validation("cannot read request body"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		canonical := sigSvc.BuildCanonicalString(
			c.Request.Method,
			c.Request.URL.Path,
			timestamp,
			nonce,
			string(bodyBytes),
		)
		if !sigSvc.Verify(secret, canonical, signature) {
			log.Warn().Str("path", c.Request.URL.Path).Str("client_ip", c.ClientIP()).Msg("gateway signature mismatch")
			response.AbortError(c, apperror.ErrInvalidSignature())
			return
		}

		// The chat user the gateway acts for, used as the rate limit identity.
		var caller struct {
			UserID string `json:"user_id"`
		}
		if json.Unmarshal(bodyBytes, &caller) == nil && caller.UserID != "" {
			c.Set(CtxUserID, caller.UserID)
		}

		c.Next()
	}
}

// RequestID propagates or assigns the X-Request-ID used by the response envelope.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		c.Set(CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(CtxRequestID)).
			Str("user_id", c.GetString(CtxUserID)).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				response.AbortError(c, apperror.New("SYS_000", "Internal server error", http.StatusInternalServerError))
			}
		}()
		c.Next()
	}
}

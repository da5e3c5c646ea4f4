package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skara-labs/crowdgate/internal/pkg/logger"
	"github.com/skara-labs/crowdgate/internal/service"
)

const HeaderRequestID = "X-Request-ID"

// RequestMiddleware assigns a request id, propagates it to the request
// context so recorded sale events carry it, and writes an access log line.
func RequestMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.New().String()
		}
		c.Header(HeaderRequestID, reqID)
		ctx := service.WithRequestID(c.Request.Context(), reqID)
		c.Request = c.Request.WithContext(logger.AppendCtx(ctx, slog.String("request_id", reqID)))

		var reqBody []byte
		if c.Request.Body != nil && isWrite(c.Request.Method) {
			reqBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(reqBody))
		}

		c.Next()

		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if caller, ok := CallerFrom(c); ok {
			fields = append(fields, "caller", caller.Hex())
		}
		if body := redactBody(c.Request.URL.Path, reqBody); body != "" {
			fields = append(fields, "body", body)
		}
		logger.DebugContext(c.Request.Context(), "Request served", fields...)
	}
}

func redactBody(path string, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !isSensitivePath(path) {
		return string(body)
	}
	redacted, ok := redactJSON(body)
	if !ok {
		return "[redacted]"
	}
	return string(redacted)
}

func isSensitivePath(path string) bool {
	return strings.HasPrefix(path, "/v1/admin")
}

func redactJSON(body []byte) ([]byte, bool) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, false
	}
	redactValue(&data)
	out, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	return out, true
}

func redactValue(v *interface{}) {
	switch raw := (*v).(type) {
	case map[string]interface{}:
		for key, val := range raw {
			if isSensitiveKey(key) {
				raw[key] = "***"
				continue
			}
			vv := val
			redactValue(&vv)
			raw[key] = vv
		}
	case []interface{}:
		for i, val := range raw {
			vv := val
			redactValue(&vv)
			raw[i] = vv
		}
	}
}

func isSensitiveKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "admin_key",
		"private_key",
		"signature",
		"password",
		"secret":
		return true
	default:
		return false
	}
}

package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/obs"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(kind string) int {
	switch kind {
	case auth.KindUnauthenticated:
		return http.StatusUnauthorized
	case auth.KindForbidden:
		return http.StatusForbidden
	case auth.KindInvalidRequest:
		return http.StatusBadRequest
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	kind := auth.Kind(err)
	code := statusFor(kind)
	msg := err.Error()
	switch code {
	case http.StatusInternalServerError:
		obs.From(r.Context()).Error("request failed", zap.String("kind", kind), zap.Error(err))
		msg = "upstream failure"
	case http.StatusGatewayTimeout:
		obs.From(r.Context()).Error("request timed out", zap.Error(err))
		msg = "upstream timeout"
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="staffdesk"`)
	}
	writeError(w, r, code, kind, msg)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	payload := map[string]any{
		"error": msg,
		"kind":  kind,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

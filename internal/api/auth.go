package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	errNoCredentials = errors.New("missing Authorization header")
	errNotBearer     = errors.New("authorization header must use the Bearer scheme")
	errBlankKey      = errors.New("empty bearer key")
	errWrongKey      = errors.New("invalid API key")
)

// bearerKey returns the key of an "Authorization: Bearer <key>" header. The
// scheme is matched case-insensitively.
func bearerKey(h http.Header) (string, error) {
	raw := h.Get("Authorization")
	if raw == "" {
		return "", errNoCredentials
	}
	scheme, key, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errNotBearer
	}
	if key = strings.TrimSpace(key); key == "" {
		return "", errBlankKey
	}
	return key, nil
}

// checkKey authorizes a request against want. An empty want admits everyone.
func checkKey(h http.Header, want string) error {
	if want == "" {
		return nil
	}
	got, err := bearerKey(h)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return errWrongKey
	}
	return nil
}

func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := checkKey(r.Header, s.config.APIKey); err != nil {
			s.logger.Warn("rejected request", "path", r.URL.Path, "remote", r.RemoteAddr, "reason", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="bxt-launcher"`)
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

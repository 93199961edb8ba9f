package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/solusnoir/solus/server/auth"
	"github.com/solusnoir/solus/server/handler/common"
	"github.com/solusnoir/solus/server/resp"
	"github.com/solusnoir/solus/server/util"
)

// ValidateTokenMiddleware wraps a downstream handler. It extracts a Bearer
// token from the Authorization header and verifies it against the token
// endpoint. When allowBodyToken is set, a multipart POST without a header is
// passed through untouched and the handler must call EnsureTokenForRequest
// once it has read the access_token form field. A nil verifier disables the
// check entirely.
func ValidateTokenMiddleware(v *auth.Verifier, allowBodyToken bool, next http.Handler) http.Handler {
	if v == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" && allowBodyToken && r.Method == http.MethodPost && util.IsMultipart(r) {
			next.ServeHTTP(w, r)
			return
		}

		r, ok := verifyAndAttach(v, w, r, token)
		if !ok {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// EnsureTokenForRequest completes authentication for handlers that accept the
// token in the request body. It returns the request carrying token details,
// or false after writing an error response.
func EnsureTokenForRequest(v *auth.Verifier, w http.ResponseWriter, r *http.Request, bodyToken string) (*http.Request, bool) {
	if v == nil {
		return r, true
	}

	bodyToken = strings.TrimSpace(bodyToken)
	if auth.GetToken(r.Context()) != nil {
		if bodyToken != "" {
			resp.WriteInvalidRequest(w, "access token must appear in header or body, not both")
			return r, false
		}
		return r, true
	}

	return verifyAndAttach(v, w, r, bodyToken)
}

func verifyAndAttach(v *auth.Verifier, w http.ResponseWriter, r *http.Request, token string) (*http.Request, bool) {
	if token == "" {
		resp.WriteUnauthorized(w, "An access token is required")
		return r, false
	}

	details, err := v.Verify(r.Context(), token)
	if err != nil {
		rl := common.Logger(r)
		if errors.Is(err, auth.ErrTokenEndpointFail) {
			rl.Errorf("token verification failed: %v", err)
			resp.WriteBadGateway(w, "Could not reach the token endpoint")
			return r, false
		}

		rl.Infof("token rejected: %v", err)
		resp.WriteForbidden(w, "Token validation failed")
		return r, false
	}

	rl := common.Logger(r).WithUser(details.Me)
	ctx := util.ContextWithLogger(r.Context(), rl)
	return r.WithContext(auth.AddToken(ctx, details)), true
}

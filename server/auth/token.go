package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/solusnoir/solus/config"
	"github.com/solusnoir/solus/server/util"
)

type tokenKeyType struct{}

var tokenKey = tokenKeyType{}

type TokenDetails struct {
	Me       string `json:"me"`
	ClientId string `json:"client_id"`
	Scope    string `json:"scope"`
	IssuedAt uint   `json:"issued_at"`
	Nonce    int    `json:"nonce"`
}

// ExtractBearerToken extracts a Bearer token from an Authorization header value.
// Returns an empty string if the header is not present, malformed, or not a Bearer token.
func ExtractBearerToken(auth string) string {
	if auth == "" {
		return ""
	}

	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}

// PopAccessToken extracts the first string access_token value from a map and removes the key.
// Returns an empty string if not present or not a string.
func PopAccessToken(values map[string]any) string {
	if values == nil {
		return ""
	}

	v, ok := values["access_token"]
	if !ok {
		return ""
	}

	delete(values, "access_token")

	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				return s
			}
		}
	}

	return ""
}

func AddToken(ctx context.Context, details *TokenDetails) context.Context {
	return context.WithValue(ctx, tokenKey, details)
}

func GetToken(ctx context.Context) *TokenDetails {
	token, ok := ctx.Value(tokenKey).(*TokenDetails)
	if !ok {
		return nil
	}

	return token
}

func (details *TokenDetails) String() string {
	return fmt.Sprintf("TokenDetails{me=%v, clientId=%v, scope=%v, issuedAt=%v, nonce=%v}", details.Me, details.ClientId, details.Scope, details.IssuedAt, details.Nonce)
}

func (details *TokenDetails) HasScope(scope Scope) bool {
	return slices.Contains(strings.Fields(strings.ToLower(details.Scope)), strings.ToLower(scope.String()))
}

func (details *TokenDetails) HasMe(me string) bool {
	me = strings.TrimSuffix(strings.TrimSpace(me), "/") + "/"
	meDetails := strings.TrimSuffix(strings.TrimSpace(details.Me), "/") + "/"
	return strings.EqualFold(me, meDetails)
}

var (
	ErrEmptyToken        = errors.New("received empty token")
	ErrTokenEndpointFail = errors.New("failed to contact token endpoint")
	ErrTokenRejected     = errors.New("token validation failed")
)

// Verifier checks bearer tokens against an external token endpoint.
type Verifier struct {
	client   *http.Client
	endpoint string
	me       string
	debug    bool
	logger   util.Logger
}

// NewVerifier returns nil when auth is disabled; a nil Verifier accepts
// every request.
func NewVerifier(cfg *config.Config, client *http.Client) *Verifier {
	if !cfg.Auth.Enabled {
		return nil
	}

	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Verifier{
		client:   client,
		endpoint: cfg.Auth.TokenEndpoint,
		me:       cfg.Auth.MeUrl,
		debug:    cfg.Debug,
		logger:   log.Default(),
	}
}

// Verify asks the token endpoint about token. ErrTokenEndpointFail means the
// endpoint could not be reached; ErrTokenRejected covers every answer that
// does not identify a token issued to this instance.
func (v *Verifier) Verify(ctx context.Context, token string) (*TokenDetails, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create http request for token endpoint: %w", err)
	}

	req.Header.Add("Accept", "application/json")
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %v", token))

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenEndpointFail, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if v.debug {
			v.logger.Printf("debug: token failed validation at token endpoint (status %d)", resp.StatusCode)
		}

		return nil, ErrTokenRejected
	}

	details := &TokenDetails{}
	if err := json.NewDecoder(resp.Body).Decode(details); err != nil {
		v.logger.Printf("warning: token endpoint provided bad data, can not verify token: %v", err)
		return nil, ErrTokenRejected
	}

	if details.Me == "" {
		v.logger.Printf("warning: token endpoint did not include \"me\" information - cannot verify token")
		return nil, ErrTokenRejected
	}

	if !details.HasMe(v.me) {
		if v.debug {
			v.logger.Printf("debug: received a valid token that did not belong to this instance (me=%q)", details.Me)
		}

		return nil, ErrTokenRejected
	}

	return details, nil
}

package auth

import (
	"net/http"
)

type Scope int

const (
	ScopeMedia Scope = iota
)

var scopeName = map[Scope]string{
	ScopeMedia: "media",
}

func (scope Scope) String() string {
	return scopeName[scope]
}

func RequestHasScope(r *http.Request, scope Scope) bool {
	token := GetToken(r.Context())
	if token == nil {
		return false
	}

	return token.HasScope(scope)
}

package nlae

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/eoscore/eoscore/cmn"
)

// RequestContext carries caller identity for one attribute/stripe/commit
// call: uid, sudo-group membership, and a JWT-backed scope set (spec
// §4.3 "Token-scope check"), grounded on authn.DecryptToken's
// HMAC-claims pattern.
type RequestContext struct {
	UID    int
	Sudoer bool
	scopes map[string]struct{}
}

// NewRequestContext parses a JWT bearer token the same way
// authn.DecryptToken does (HMAC-signed, claims carry a "scope" array),
// and builds the scope set consulted by HasScope.
func NewRequestContext(uid int, sudoer bool, tokenStr, secret string) (*RequestContext, error) {
	rc := &RequestContext{UID: uid, Sudoer: sudoer, scopes: make(map[string]struct{})}
	if tokenStr == "" {
		return rc, nil
	}
	token, err := jwt.Parse(tokenStr, func(tk *jwt.Token) (interface{}, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("nlae: unexpected signing method %v", tk.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, &cmn.ErrPermissionDenied{Reason: "invalid token", Path: ""}
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, &cmn.ErrPermissionDenied{Reason: "invalid token claims", Path: ""}
	}
	if exp, ok := claims["exp"].(float64); ok {
		if time.Unix(int64(exp), 0).Before(time.Now()) {
			return nil, &cmn.ErrPermissionDenied{Reason: "token expired", Path: ""}
		}
	}
	if raw, ok := claims["scope"].([]interface{}); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				rc.scopes[str] = struct{}{}
			}
		}
	}
	return rc, nil
}

// HasScope reports whether the token carries the named scope.
func (rc *RequestContext) HasScope(scope string) bool {
	if rc == nil {
		return false
	}
	_, ok := rc.scopes[scope]
	return ok
}

// IsSudoerOrRoot implements "only a sudoer... or uid=0" (spec §4.3 step
// 3 and Stripe Verify).
func (rc *RequestContext) IsSudoerOrRoot() bool {
	return rc.UID == 0 || rc.Sudoer
}

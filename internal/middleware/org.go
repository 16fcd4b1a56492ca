// Package middleware scopes requests to a single organization. Every
// tenant-facing route sits behind RequireOrg; handlers read the org id
// back out of the request context.
package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

// ContextKey is the type for context keys in this package.
type ContextKey string

const (
	OrgIDKey  ContextKey = "org_id"
	UserIDKey ContextKey = "user_id"
)

var uuidRegex = regexp.MustCompile(`^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$`)

// OrgFromContext returns the organization id set by RequireOrg or
// OptionalOrg, or "" when absent.
func OrgFromContext(ctx context.Context) string {
	id, _ := ctx.Value(OrgIDKey).(string)
	return id
}

// UserFromContext returns the authenticated user id, or "" when the
// request carried no usable token.
func UserFromContext(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}

// RequireOrg rejects requests that carry no valid organization id. The
// id is taken from, in order of precedence: JWT claims on a Bearer
// token (org_id or organization_id), the X-Org-ID header, or the
// org_id query parameter. Header and query values must be UUIDs.
func RequireOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, orgID := withIdentity(r)
		if orgID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing or invalid organization"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalOrg attaches the organization id when one is present but
// lets unscoped requests through.
func OptionalOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, _ := withIdentity(r)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withIdentity resolves the org and user for a request and returns a
// context carrying whichever were found.
func withIdentity(r *http.Request) (context.Context, string) {
	ctx := r.Context()

	var orgID, userID string
	if claims := parseJWTClaims(bearerToken(r)); claims != nil {
		orgID = firstValidUUID(claims.OrgID, claims.OrganizationID)
		userID = claims.Sub
	}
	if orgID == "" {
		orgID = firstValidUUID(r.Header.Get("X-Org-ID"), r.URL.Query().Get("org_id"))
	}

	if orgID != "" {
		ctx = context.WithValue(ctx, OrgIDKey, orgID)
	}
	if userID != "" {
		ctx = context.WithValue(ctx, UserIDKey, userID)
	}
	return ctx, orgID
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ""
	}
	return token
}

// jwtClaims is the subset of token claims this service reads.
type jwtClaims struct {
	OrgID          string `json:"org_id"`
	OrganizationID string `json:"organization_id"`
	Sub            string `json:"sub"`
}

// parseJWTClaims decodes a token's payload without verifying the
// signature; verification happens upstream at the gateway.
func parseJWTClaims(token string) *jwtClaims {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil
	}

	decoded, err := decodeJWTSegment(parts[1])
	if err != nil {
		return nil
	}

	var claims jwtClaims
	if json.Unmarshal(decoded, &claims) != nil {
		return nil
	}
	return &claims
}

// decodeJWTSegment accepts url-safe or standard base64, padded or not.
func decodeJWTSegment(segment string) ([]byte, error) {
	segment = strings.TrimRight(segment, "=")
	if decoded, err := base64.RawURLEncoding.DecodeString(segment); err == nil {
		return decoded, nil
	}
	return base64.RawStdEncoding.DecodeString(segment)
}

// firstValidUUID returns the first argument that is a well-formed
// UUID, after trimming whitespace.
func firstValidUUID(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if uuidRegex.MatchString(v) {
			return v
		}
	}
	return ""
}

package admission

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// UserIDFunc devolve o id do usuário autenticado upstream, ou "" para anônimo.
type UserIDFunc func(r *http.Request) string

// HeaderUserID confia num header injetado pelo proxy de autenticação (ex.: X-User-ID).
// Só faz sentido quando o cliente não alcança o gateway sem passar por esse proxy.
func HeaderUserID(header string) UserIDFunc {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(header))
	}
}

// BearerUserID valida um JWT HS256 do header Authorization e usa o claim sub.
// Token ausente, inválido ou expirado => anônimo; nunca rejeita a requisição.
func BearerUserID(secret []byte) UserIDFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFn := func(*jwt.Token) (any, error) { return secret, nil }

	return func(r *http.Request) string {
		raw, ok := bearerToken(r)
		if !ok {
			return ""
		}
		claims := &jwt.RegisteredClaims{}
		token, err := parser.ParseWithClaims(raw, claims, keyFn)
		if err != nil || !token.Valid {
			return ""
		}
		return claims.Subject
	}
}

// FirstUserID tenta cada extrator na ordem.
func FirstUserID(fns ...UserIDFunc) UserIDFunc {
	return func(r *http.Request) string {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if id := fn(r); id != "" {
				return id
			}
		}
		return ""
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

package domain

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// UnknownIP agrupa todos os clientes cujo IP não pôde ser resolvido em um único balde.
const UnknownIP = "unknown"

const fingerprintLen = 16

// Identity é a chave opaca do cliente usada para contabilidade de rate limit,
// violações, ataques e blacklist. Formatos: "user:<id>" ou "anon:<fingerprint>".
type Identity string

func (i Identity) String() string { return string(i) }

// Authenticated indica se a identidade veio de um usuário autenticado.
func (i Identity) Authenticated() bool { return strings.HasPrefix(string(i), "user:") }

// UserIdentity monta a identidade de um usuário autenticado.
func UserIdentity(userID string) Identity {
	return Identity("user:" + strings.TrimSpace(userID))
}

// AnonIdentity deriva um fingerprint determinístico e não reversível de IP + User-Agent.
//
// Não é o base64 cru de "ip:ua" cortado em 16 caracteres: esse prefixo expõe o IP e
// cobre só os 12 primeiros bytes, então UAs diferentes do mesmo IP colidiriam.
// O sha256 antes do base64 mantém o formato "anon:" + 16 caracteres sem esses dois problemas.
func AnonIdentity(ip, userAgent string) Identity {
	if ip == "" {
		ip = UnknownIP
	}
	sum := sha256.Sum256([]byte(ip + ":" + userAgent))
	fp := base64.RawURLEncoding.EncodeToString(sum[:])
	return Identity("anon:" + fp[:fingerprintLen])
}

// ResolveIdentity prefere o usuário autenticado (sobrevive a troca de IP);
// sem ele, cai no fingerprint anônimo. Nunca falha.
func ResolveIdentity(ip, userAgent, userID string) Identity {
	if id := strings.TrimSpace(userID); id != "" {
		return UserIdentity(id)
	}
	return AnonIdentity(ip, userAgent)
}

package admission

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"security-gateway/middleware/admission/domain"
)

const DefaultCDNHeader = "CF-Connecting-IP"

// IPFunc extrai o IP do cliente de uma requisição.
type IPFunc func(r *http.Request) string

// ClientIP resolve o IP do cliente: header da CDN, X-Forwarded-For (primeiro valor),
// X-Real-IP e por fim o endereço da conexão. Headers só são lidos com trustProxy.
// Sem nada resolvido retorna "unknown" (todos os irresolvíveis dividem um bucket).
func ClientIP(r *http.Request, cdnHeader string, trustProxy bool) string {
	if trustProxy {
		for _, h := range []string{cdnHeader, "X-Forwarded-For", "X-Real-IP"} {
			if h == "" {
				continue
			}
			if ip := firstValue(r.Header.Get(h)); ip != "" {
				return ip
			}
		}
	}

	if host := RemoteIP(r); host != "" {
		return host
	}
	return domain.UnknownIP
}

// RemoteIP é o IP da conexão TCP, sem olhar header nenhum.
func RemoteIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(addr)
	if err == nil && host != "" {
		return host
	}
	return addr
}

// ClientIPFunc fixa a configuração de ClientIP.
func ClientIPFunc(cdnHeader string, trustProxy bool) IPFunc {
	return func(r *http.Request) string {
		return ClientIP(r, cdnHeader, trustProxy)
	}
}

func firstValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

// ParseTrustedNets aceita CIDRs ou IPs soltos ("10.0.0.0/8", "127.0.0.1").
func ParseTrustedNets(values []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(v)
		if err != nil {
			return nil, err
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

func trusted(nets []netip.Prefix, ip string) bool {
	if len(nets) == 0 {
		return false
	}
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range nets {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

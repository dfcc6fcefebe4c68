package application

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"security-gateway/middleware/admission/domain"
)

// Detector testa o conteúdo da requisição contra as assinaturas de cada categoria.
// Cada categoria vira uma única regex (alternância), então o caso limpo custa
// uma passada por categoria.
type Detector struct {
	content []compiledCategory
	agent   []compiledCategory
}

type compiledCategory struct {
	category domain.Category
	re       *regexp.Regexp
}

// NewDetector compila as assinaturas. Categorias ausentes ficam sem padrões.
func NewDetector(signatures map[domain.Category][]string) (*Detector, error) {
	for c := range signatures {
		if _, err := domain.ParseCategory(string(c)); err != nil {
			return nil, err
		}
	}

	d := &Detector{}
	for _, c := range domain.Categories() {
		patterns := signatures[c]
		if len(patterns) == 0 {
			continue
		}
		parts := make([]string, 0, len(patterns))
		for _, p := range patterns {
			if _, err := regexp.Compile(p); err != nil {
				return nil, fmt.Errorf("signature %s %q: %w", c, p, err)
			}
			parts = append(parts, "(?:"+p+")")
		}
		re, err := regexp.Compile("(?i)" + strings.Join(parts, "|"))
		if err != nil {
			return nil, fmt.Errorf("signature %s: %w", c, err)
		}
		cc := compiledCategory{category: c, re: re}
		if c == domain.SuspiciousUserAgent {
			d.agent = append(d.agent, cc)
		} else {
			d.content = append(d.content, cc)
		}
	}
	return d, nil
}

// NewDefaultDetector usa as assinaturas embarcadas (estáticas; compilação não falha).
func NewDefaultDetector() *Detector {
	d, err := NewDetector(domain.DefaultSignatures())
	if err != nil {
		panic(err)
	}
	return d
}

// Scan devolve as categorias casadas; vazio quando limpo. Nunca falha.
func (d *Detector) Scan(requestURL, body, query, userAgent string) domain.CategorySet {
	if d == nil {
		return nil
	}

	var found domain.CategorySet
	if subject := scanSubject(requestURL, body, query); subject != "" {
		for _, cc := range d.content {
			if cc.re.MatchString(subject) {
				found = append(found, cc.category)
			}
		}
	}
	if ua := strings.ToLower(userAgent); ua != "" {
		for _, cc := range d.agent {
			if cc.re.MatchString(ua) {
				found = append(found, cc.category)
			}
		}
	}
	return found
}

// scanSubject concatena URL+body+query em minúsculas. URL e query também entram
// decodificados, para pegar payload percent-encoded.
func scanSubject(requestURL, body, query string) string {
	if requestURL == "" && body == "" && query == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(2*(len(requestURL)+len(query)) + len(body) + 4)
	b.WriteString(requestURL)
	b.WriteByte('\n')
	b.WriteString(body)
	b.WriteByte('\n')
	b.WriteString(query)
	if u, err := url.PathUnescape(requestURL); err == nil && u != requestURL {
		b.WriteByte('\n')
		b.WriteString(u)
	}
	if q, err := url.QueryUnescape(query); err == nil && q != query {
		b.WriteByte('\n')
		b.WriteString(q)
	}
	return strings.ToLower(b.String())
}

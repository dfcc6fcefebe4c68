package logger

import (
	"io"
	"regexp"
)

// RedactWriter mascara segredos antes de escrever: tokens Bearer, senha em
// URL do Redis e o segredo do JWT.
type RedactWriter struct {
	w     io.Writer
	rules []redaction
}

type redaction struct {
	re   *regexp.Regexp
	repl []byte
}

var defaultRules = []redaction{
	{regexp.MustCompile(`(?i)(Bearer\s+)[A-Za-z0-9\-_\.]+`), []byte("${1}[REDACTED]")},
	// só a senha: "redis://host:6379" (sem @) fica intacto
	{regexp.MustCompile(`(?i)(rediss?://[^:/@\s"]*:)[^@/\s"]+@`), []byte("${1}[REDACTED]@")},
	{regexp.MustCompile(`(?i)(jwt[_-]?secret["'\s:=]+)[^"'\s,}]+`), []byte("${1}[REDACTED]")},
}

func NewRedactWriter(w io.Writer) *RedactWriter {
	return &RedactWriter{w: w, rules: defaultRules}
}

// Write devolve len(p) mesmo quando a redação muda o tamanho, senão o chamador
// enxergaria short write.
func (r *RedactWriter) Write(p []byte) (int, error) {
	sanitized := p
	for _, rule := range r.rules {
		sanitized = rule.re.ReplaceAll(sanitized, rule.repl)
	}
	if _, err := r.w.Write(sanitized); err != nil {
		return 0, err
	}
	return len(p), nil
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownCategory = errors.New("unknown attack category")

// Category é uma classe de assinatura maliciosa.
type Category string

const (
	SQLInjection        Category = "sql_injection"
	XSS                 Category = "xss"
	PathTraversal       Category = "path_traversal"
	CommandInjection    Category = "command_injection"
	SuspiciousUserAgent Category = "suspicious_user_agent"
)

// Categories retorna todas as categorias em ordem estável de avaliação.
func Categories() []Category {
	return []Category{SQLInjection, XSS, PathTraversal, CommandInjection, SuspiciousUserAgent}
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// CategorySet é o resultado de um scan, em ordem de Categories(). Vazio = limpo.
type CategorySet []Category

func (s CategorySet) Empty() bool { return len(s) == 0 }

func (s CategorySet) Has(c Category) bool {
	for _, x := range s {
		if x == c {
			return true
		}
	}
	return false
}

func (s CategorySet) Strings() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = string(c)
	}
	return out
}

// DefaultSignatures são as assinaturas embarcadas. Todas são avaliadas contra texto
// já em minúsculas; SuspiciousUserAgent é testada só contra o User-Agent.
func DefaultSignatures() map[Category][]string {
	shellCmds := `(ls|cat|rm|wget|curl|nc|ncat|bash|sh|whoami|id|uname|ping|chmod|python|perl)`
	return map[Category][]string{
		SQLInjection: {
			`union(\s|/\*.*?\*/|\+)+(all(\s|\+)+)?select`,
			`drop(\s|\+)+(table|database)`,
			`;\s*(drop|delete|truncate|alter|insert|update)\s`,
			`'\s*(or|and)\s+'?\w+'?\s*=\s*'?\w+`,
			`\b(or|and)\s+1\s*=\s*1\b`,
			`'\s*(--|#)`,
			`/\*.*?\*/`,
			`\b(sleep|benchmark|pg_sleep)\s*\(`,
			`\binformation_schema\b`,
			`\bxp_cmdshell\b`,
		},
		XSS: {
			`<script[\s>/]`,
			`</script`,
			`(java|vb)script\s*:`,
			`\bon(load|error|click|mouseover|mouseout|focus|blur|submit|change|keyup|keydown)\s*=`,
			`\beval\s*\(`,
			`\bexpression\s*\(`,
			`<iframe[\s>/]`,
			`document\.cookie`,
		},
		PathTraversal: {
			`\.\./`,
			`\.\.\\`,
			`%2e%2e(%2f|%5c|/|\\)`,
			`\.\.(%2f|%5c)`,
			`%252e%252e`,
			`/etc/(passwd|shadow|hosts)`,
			`/proc/self/`,
			`c:\\windows`,
			`\bboot\.ini\b`,
		},
		CommandInjection: {
			`;\s*` + shellCmds + `\b`,
			`\|\|?\s*` + shellCmds + `\b`,
			`&&\s*` + shellCmds + `\b`,
			"`[^`]+`",
			`\$\([^)]*\)`,
			`\$\{ifs\}`,
			`/bin/(ba)?sh\b`,
		},
		SuspiciousUserAgent: {
			`\b(sqlmap|nikto|nmap|masscan|nessus|acunetix|dirbuster|gobuster|dirb|wpscan|havij|w3af|burpsuite|zgrab|nuclei|hydra|openvas|netsparker|whatweb|fimap|commix)\b`,
		},
	}
}

package config

import (
	"fmt"

	"security-gateway/middleware/admission/domain"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// PolicyEntry é uma política como escrita no YAML.
type PolicyEntry struct {
	WindowSeconds int `koanf:"window_seconds"`
	MaxRequests   int `koanf:"max_requests"`
}

// PolicyFile é o conteúdo de POLICY_FILE:
//
//	policies:
//	  "POST /auth/login": {window_seconds: 300, max_requests: 5}
//	  default: {window_seconds: 60, max_requests: 100}
//	signatures:
//	  xss: ["<marquee"]
type PolicyFile struct {
	Policies   map[string]PolicyEntry `koanf:"policies"`
	Signatures map[string][]string    `koanf:"signatures"`
}

// LoadPolicyFile lê o YAML. O delimitador "::" deixa intactas chaves como
// "GET /v1.2/search".
func LoadPolicyFile(path string) (*PolicyFile, error) {
	k := koanf.New("::")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load policy file %s: %w", path, err)
	}
	pf := &PolicyFile{}
	if err := k.UnmarshalWithConf("", pf, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal policy file %s: %w", path, err)
	}
	return pf, nil
}

// PolicyTable combina a tabela embarcada com as entradas do arquivo
// (o arquivo sobrescreve por chave).
func (c *Config) PolicyTable() (domain.PolicyTable, error) {
	entries := domain.DefaultPolicies()
	for key, e := range c.Policies {
		entries[key] = domain.NewPolicy(e.WindowSeconds, e.MaxRequests)
	}
	return domain.NewPolicyTable(entries)
}

// SignatureSet devolve as assinaturas embarcadas; uma categoria presente no
// arquivo substitui a lista inteira dessa categoria.
func (c *Config) SignatureSet() (map[domain.Category][]string, error) {
	sigs := domain.DefaultSignatures()
	for name, patterns := range c.Signatures {
		cat, err := domain.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		sigs[cat] = patterns
	}
	return sigs, nil
}

// AuditCaps devolve o tamanho máximo de cada stream de auditoria.
func (c *Config) AuditCaps() map[domain.Stream]int64 {
	return map[domain.Stream]int64{
		domain.StreamAccess:     c.AuditMaxAccess,
		domain.StreamViolations: c.AuditMaxViolations,
		domain.StreamAttacks:    c.AuditMaxAttacks,
		domain.StreamCritical:   c.AuditMaxCritical,
	}
}

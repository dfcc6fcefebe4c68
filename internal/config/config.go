package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config é a configuração do gateway, lida do ambiente.
type Config struct {
	// Servidor
	ListenAddr  string `koanf:"listen_addr"`
	UpstreamURL string `koanf:"upstream_url"`
	MetricsAddr string `koanf:"metrics_addr"`
	LogLevel    string `koanf:"log_level"`
	LogFormat   string `koanf:"log_format"`

	// Store compartilhado
	StoreBackend   string        `koanf:"store_backend"`
	RedisURL       string        `koanf:"redis_url"`
	RedisKeyPrefix string        `koanf:"redis_key_prefix"`
	StoreTimeout   time.Duration `koanf:"store_timeout"`
	RateAlgorithm  string        `koanf:"rate_algorithm"`

	// Escalonamento
	ViolationThreshold int           `koanf:"violation_threshold"`
	ViolationPeriod    time.Duration `koanf:"violation_period"`
	AttackThreshold    int           `koanf:"attack_threshold"`
	AttackPeriod       time.Duration `koanf:"attack_period"`
	BanDuration        time.Duration `koanf:"ban_duration"`
	BlockOnAttack      bool          `koanf:"block_on_attack"`

	// Identidade do cliente
	TrustProxyHeaders bool     `koanf:"trust_proxy_headers"`
	CDNIPHeader       string   `koanf:"cdn_ip_header"`
	TrustedCIDRs      []string `koanf:"trusted_cidrs"`
	SensitivePaths    []string `koanf:"sensitive_paths"`
	UserIDHeader      string   `koanf:"user_id_header"`
	JWTSecret         string   `koanf:"jwt_secret"`
	MaxScanBytes      int64    `koanf:"max_scan_bytes"`

	// Auditoria
	AuditWorkers       int           `koanf:"audit_workers"`
	AuditQueueDepth    int           `koanf:"audit_queue_depth"`
	AuditMaxAccess     int64         `koanf:"audit_max_access"`
	AuditMaxViolations int64         `koanf:"audit_max_violations"`
	AuditMaxAttacks    int64         `koanf:"audit_max_attacks"`
	AuditMaxCritical   int64         `koanf:"audit_max_critical"`
	AuditCountersTTL   time.Duration `koanf:"audit_counters_ttl"`

	// Concorrência
	ConcurrencyMax     int           `koanf:"concurrency_max"`
	ConcurrencyTimeout time.Duration `koanf:"concurrency_timeout"`

	// PolicyFile aponta para o YAML opcional com políticas e assinaturas.
	PolicyFile string `koanf:"policy_file"`

	// Preenchidos a partir de PolicyFile.
	Policies   map[string]PolicyEntry `koanf:"-"`
	Signatures map[string][]string    `koanf:"-"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"listen_addr":          ":8080",
		"upstream_url":         "http://localhost:8081",
		"metrics_addr":         ":9090",
		"log_level":            "info",
		"log_format":           "json",
		"store_backend":        "redis",
		"redis_url":            "redis://localhost:6379/0",
		"redis_key_prefix":     "security",
		"store_timeout":        "200ms",
		"rate_algorithm":       "sliding",
		"violation_threshold":  10,
		"violation_period":     "1h",
		"attack_threshold":     3,
		"attack_period":        "1h",
		"ban_duration":         "24h",
		"block_on_attack":      false,
		"trust_proxy_headers":  true,
		"cdn_ip_header":        "CF-Connecting-IP",
		"max_scan_bytes":       65536,
		"audit_workers":        2,
		"audit_queue_depth":    1024,
		"audit_max_access":     10000,
		"audit_max_violations": 10000,
		"audit_max_attacks":    5000,
		"audit_max_critical":   5000,
		"audit_counters_ttl":   "48h",
		"concurrency_max":      0,
		"concurrency_timeout":  "0s",
	}
}

// Load lê a configuração do ambiente (com injeção de _FILE) e, se POLICY_FILE
// estiver definido, carrega o YAML de políticas.
func Load() (*Config, error) {
	// "." como delimitador: as env vars só têm "_", então as chaves ficam planas.
	k := koanf.New(".")

	if err := k.Load(&rawProvider{data: defaults()}, nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	if err := injectFileSecrets(k); err != nil {
		return nil, fmt.Errorf("inject file secrets: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// listas vêm como CSV
	cfg.TrustedCIDRs = splitCSV(k.String("trusted_cidrs"))
	cfg.SensitivePaths = splitCSV(k.String("sensitive_paths"))

	cfg.sanitise()

	if cfg.PolicyFile != "" {
		pf, err := LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		cfg.Policies = pf.Policies
		cfg.Signatures = pf.Signatures
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checa campos obrigatórios e restrições semânticas.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of trace,debug,info,warn,error,fatal,panic; got %q", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text; got %q", c.LogFormat)
	}

	switch c.StoreBackend {
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_BACKEND=redis")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be redis or memory; got %q", c.StoreBackend)
	}

	if c.RateAlgorithm != "sliding" && c.RateAlgorithm != "fixed" {
		return fmt.Errorf("RATE_ALGORITHM must be sliding or fixed; got %q", c.RateAlgorithm)
	}
	if !strings.HasPrefix(c.UpstreamURL, "http://") && !strings.HasPrefix(c.UpstreamURL, "https://") {
		return fmt.Errorf("UPSTREAM_URL must start with http:// or https://; got %q", c.UpstreamURL)
	}

	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"STORE_TIMEOUT", c.StoreTimeout},
		{"VIOLATION_PERIOD", c.ViolationPeriod},
		{"ATTACK_PERIOD", c.AttackPeriod},
		{"BAN_DURATION", c.BanDuration},
	} {
		if d.v <= 0 {
			return fmt.Errorf("%s must be > 0; got %s", d.name, d.v)
		}
	}
	if c.ViolationThreshold < 1 {
		return fmt.Errorf("VIOLATION_THRESHOLD must be >= 1; got %d", c.ViolationThreshold)
	}
	if c.AttackThreshold < 1 {
		return fmt.Errorf("ATTACK_THRESHOLD must be >= 1; got %d", c.AttackThreshold)
	}
	if c.MaxScanBytes < 0 {
		return fmt.Errorf("MAX_SCAN_BYTES must be >= 0; got %d", c.MaxScanBytes)
	}
	if c.AuditWorkers < 1 || c.AuditWorkers > 64 {
		return fmt.Errorf("AUDIT_WORKERS must be 1-64; got %d", c.AuditWorkers)
	}
	if c.AuditQueueDepth < 1 {
		return fmt.Errorf("AUDIT_QUEUE_DEPTH must be >= 1; got %d", c.AuditQueueDepth)
	}
	if c.ConcurrencyMax < 0 {
		return fmt.Errorf("CONCURRENCY_MAX must be >= 0; got %d", c.ConcurrencyMax)
	}

	for _, entry := range c.TrustedCIDRs {
		if strings.Contains(entry, "/") {
			if _, err := netip.ParsePrefix(entry); err != nil {
				return fmt.Errorf("TRUSTED_CIDRS: invalid CIDR %q: %w", entry, err)
			}
		} else if _, err := netip.ParseAddr(entry); err != nil {
			return fmt.Errorf("TRUSTED_CIDRS: invalid IP address %q", entry)
		}
	}

	if _, err := c.PolicyTable(); err != nil {
		return fmt.Errorf("POLICY_FILE: %w", err)
	}
	if _, err := c.SignatureSet(); err != nil {
		return fmt.Errorf("POLICY_FILE: %w", err)
	}
	return nil
}

func (c *Config) sanitise() {
	c.ListenAddr = stripEnvQuotes(c.ListenAddr)
	c.UpstreamURL = stripEnvQuotes(c.UpstreamURL)
	c.MetricsAddr = stripEnvQuotes(c.MetricsAddr)
	c.LogLevel = stripEnvQuotes(c.LogLevel)
	c.LogFormat = stripEnvQuotes(c.LogFormat)
	c.StoreBackend = stripEnvQuotes(c.StoreBackend)
	c.RedisURL = stripEnvQuotes(c.RedisURL)
	c.RedisKeyPrefix = stripEnvQuotes(c.RedisKeyPrefix)
	c.RateAlgorithm = strings.ToLower(stripEnvQuotes(c.RateAlgorithm))
	c.CDNIPHeader = stripEnvQuotes(c.CDNIPHeader)
	c.UserIDHeader = stripEnvQuotes(c.UserIDHeader)
	c.JWTSecret = stripEnvQuotes(c.JWTSecret)
	c.PolicyFile = stripEnvQuotes(c.PolicyFile)

	for i, s := range c.TrustedCIDRs {
		c.TrustedCIDRs[i] = stripEnvQuotes(s)
	}
	for i, s := range c.SensitivePaths {
		c.SensitivePaths[i] = stripEnvQuotes(s)
	}
}

// stripEnvQuotes remove um par simétrico de aspas (Docker --env-file não remove).
func stripEnvQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	if (s[0] == '\'' && s[len(s)-1] == '\'') ||
		(s[0] == '"' && s[len(s)-1] == '"') {
		return s[1 : len(s)-1]
	}
	return s
}

// fileSecretKeys aceitam a variante <KEY>_FILE apontando para um arquivo.
var fileSecretKeys = []string{
	"redis_url",
	"jwt_secret",
}

func injectFileSecrets(k *koanf.Koanf) error {
	for _, key := range fileSecretKeys {
		filePath := k.String(key + "_file")
		if filePath == "" {
			filePath = os.Getenv(strings.ToUpper(key) + "_FILE")
		}
		if filePath == "" {
			continue
		}
		filePath = stripEnvQuotes(filePath)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("reading secret file for %s (%s): %w", key, filePath, err)
		}
		if err := k.Set(key, strings.TrimSpace(string(content))); err != nil {
			return fmt.Errorf("setting %s from file: %w", key, err)
		}
	}
	return nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// rawProvider implementa koanf.Provider para um map em memória.
type rawProvider struct {
	data map[string]interface{}
}

func (r *rawProvider) Read() (map[string]interface{}, error) {
	return r.data, nil
}

func (r *rawProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("rawProvider does not support ReadBytes")
}

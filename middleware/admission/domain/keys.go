package domain

import "strings"

const DefaultKeyPrefix = "security"

// Keys centraliza o layout das chaves no store.
type Keys struct {
	prefix string
}

func NewKeys(prefix string) Keys {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return Keys{prefix: prefix}
}

func (k Keys) Prefix() string { return k.prefix }

// Rate é o WindowCounterRecord de (identidade, endpoint).
func (k Keys) Rate(id Identity, endpoint string) string {
	return k.prefix + ":rate:" + string(id) + ":" + endpointSegment(endpoint)
}

func (k Keys) Violations(id Identity) string { return k.prefix + ":violations:" + string(id) }

func (k Keys) Attacks(id Identity) string { return k.prefix + ":attacks:" + string(id) }

func (k Keys) Blacklist(id Identity) string { return k.prefix + ":blacklist:" + string(id) }

func (k Keys) Log(s Stream) string { return k.prefix + ":logs:" + string(s) }

func endpointSegment(endpoint string) string {
	return strings.ReplaceAll(strings.TrimSpace(endpoint), " ", "_")
}

package domain

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable envolve qualquer falha de rede/timeout do store compartilhado.
// Quem consome deve tratar como fail-open.
var ErrStoreUnavailable = errors.New("store unavailable")

// CounterStore cobre contagem em janela. As duas operações precisam ser atômicas
// no store (sem check-then-increment do lado do cliente).
type CounterStore interface {
	// IncrWindow incrementa key. O TTL é aplicado na criação (valor == 1) ou,
	// se refresh, em toda chamada. Retorna o valor novo e o TTL restante.
	IncrWindow(ctx context.Context, key string, ttl time.Duration, refresh bool) (count int64, ttlLeft time.Duration, err error)
	// AddToWindow registra at em um log ordenado, remove entradas com idade >= window,
	// limita a expiração da chave a window e retorna quantas restaram.
	// freeAt é a entrada de posição count-limit (0 quando count <= limit): quando ela
	// sair da janela, a próxima requisição cabe no limite.
	AddToWindow(ctx context.Context, key string, at time.Time, window time.Duration, limit int64) (count int64, freeAt time.Time, err error)
}

// FlagStore guarda marcadores de presença com expiração (blacklist).
type FlagStore interface {
	SetFlag(ctx context.Context, key string, ttl time.Duration) error
	HasFlag(ctx context.Context, key string) (bool, error)
}

// LogSink é append em lista com corte FIFO no tamanho máximo (LPUSH + LTRIM).
type LogSink interface {
	PushCapped(ctx context.Context, key string, value []byte, max int64) error
}

// Store agrega todas as portas; Redis e memória implementam.
type Store interface {
	CounterStore
	FlagStore
	LogSink
	Ping(ctx context.Context) error
}

// SlotPool representa um recurso com capacidade finita (requisições em voo).
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}

package application

import (
	"context"
	"errors"
	"time"

	"security-gateway/middleware/admission/domain"
)

var ErrNoSlot = errors.New("no concurrency slot available")

// ConcurrencyService limita requisições em voo, sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire espera uma vaga até AcquireTimeout (ou até o ctx encerrar, se <= 0).
// Sem pool, tudo passa.
func (s ConcurrencyService) Acquire(ctx context.Context) (release func(), err error) {
	if s.Pool == nil {
		return func() {}, nil
	}
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}
	release, ok := s.Pool.Acquire(ctx)
	if !ok {
		return nil, ErrNoSlot
	}
	return release, nil
}

package application

import (
	"context"
	"testing"
	"time"

	"security-gateway/middleware/admission/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrencyService_TimesOutWhenFull(t *testing.T) {
	svc := ConcurrencyService{Pool: infra.NewSemaphorePool(1), AcquireTimeout: 20 * time.Millisecond}

	release, err := svc.Acquire(context.Background())
	require.NoError(t, err)

	_, err = svc.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrNoSlot)

	release()
	release2, err := svc.Acquire(context.Background())
	require.NoError(t, err)
	release2()
}

func TestConcurrencyService_NoPoolAlwaysPasses(t *testing.T) {
	release, err := ConcurrencyService{}.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotPanics(t, release)
}

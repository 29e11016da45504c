package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/restream-tools/restreamctl/internal/auth"
)

func TestMemoryTokenStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTokenStore()

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded, "an empty store reads as an absent session")

	record := &auth.TokenRecord{AccessToken: "at1", RefreshToken: "rt1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.Save(ctx, record))

	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, record, loaded)

	require.NoError(t, s.Clear(ctx))
	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestMemoryTokenStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTokenStore()

	original := &auth.TokenRecord{AccessToken: "at1"}
	require.NoError(t, s.Save(ctx, original))

	original.AccessToken = "mutated-after-save"
	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "at1", loaded.AccessToken)

	loaded.AccessToken = "mutated-after-load"
	again, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "at1", again.AccessToken)
}

func TestMemoryTokenStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTokenStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = s.Save(ctx, &auth.TokenRecord{AccessToken: "at"})
				_, _ = s.Load(ctx)
				_ = s.Clear(ctx)
			}
		}()
	}
	wg.Wait()
}

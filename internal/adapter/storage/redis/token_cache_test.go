package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCache_Miss(t *testing.T) {
	s := miniredis.RunT(t)
	cache := NewTokenCache(goredis.NewClient(&goredis.Options{Addr: s.Addr()}))

	val, err := cache.Get(context.Background(), "price:abc")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestTokenCache_SetGetExpire(t *testing.T) {
	s := miniredis.RunT(t)
	cache := NewTokenCache(goredis.NewClient(&goredis.Options{Addr: s.Addr()}))
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "price:abc", []byte(`{"price":1.5}`), time.Minute))
	assert.True(t, s.Exists("tokeninfo:price:abc"))

	val, err := cache.Get(ctx, "price:abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":1.5}`, string(val))

	s.FastForward(2 * time.Minute)

	val, err = cache.Get(ctx, "price:abc")
	require.NoError(t, err)
	assert.Nil(t, val)
}

package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryCacheKeyStableAndVersioned(t *testing.T) {
	k1 := QueryCacheKey("p1", "authenticate user", "hybrid", 5, 1)
	k2 := QueryCacheKey("p1", "authenticate user", "hybrid", 5, 1)
	assert.Equal(t, k1, k2)

	// A version bump invalidates.
	k3 := QueryCacheKey("p1", "authenticate user", "hybrid", 5, 2)
	assert.NotEqual(t, k1, k3)

	// Distinct queries, modes, limits, and projects all separate.
	assert.NotEqual(t, k1, QueryCacheKey("p1", "hash password", "hybrid", 5, 1))
	assert.NotEqual(t, k1, QueryCacheKey("p1", "authenticate user", "text", 5, 1))
	assert.NotEqual(t, k1, QueryCacheKey("p1", "authenticate user", "hybrid", 10, 1))
	assert.NotEqual(t, k1, QueryCacheKey("p2", "authenticate user", "hybrid", 5, 1))

	assert.True(t, strings.HasPrefix(k1, "query:p1:hybrid:5:"))
}

func TestEmbeddingCacheKey(t *testing.T) {
	assert.Equal(t, "embed:m1:abc", EmbeddingCacheKey("m1", "abc"))
}

func TestNewRedisCacheInvalidURL(t *testing.T) {
	_, err := NewRedisCache("not-a-url")
	assert.Error(t, err)
}

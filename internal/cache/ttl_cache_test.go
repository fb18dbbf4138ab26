package cache

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"

	metricdomain "github.com/smallbiznis/tarifa/internal/billablemetric/domain"
)

func TestTTLCache_SetGet(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 42, time.Minute)
	value, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 42, value)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestTTLCache_Expiry(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Nanosecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTLCache_ZeroTTLNotStored(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, 0)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestRatingResolverCache_SkipsZeroIDs(t *testing.T) {
	c := NewRatingResolverCache()

	c.SetMetric(snowflake.ID(1), "api_call", metricdomain.BillableMetric{})
	_, ok := c.GetMetric(snowflake.ID(1), "api_call")
	assert.False(t, ok)

	c.SetMetric(snowflake.ID(1), "api_call", metricdomain.BillableMetric{ID: snowflake.ID(7), Code: "api_call"})
	cached, ok := c.GetMetric(snowflake.ID(1), "api_call")
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(7), cached.ID)
}

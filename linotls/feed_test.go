package linotls

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticFeed(t *testing.T) {
	cfg := NewConfig().WithFallback(makeTestCert(t, nil, nil))

	feed, err := StaticFeed(cfg)
	require.NoError(t, err)

	require.Same(t, cfg, <-feed)

	// The feed is closed after the one configuration.
	_, ok := <-feed
	require.False(t, ok)
}

func TestStaticFeed_invalid(t *testing.T) {
	cfg := NewConfig().WithFallback(Certificate{})

	_, err := StaticFeed(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid configuration")
}

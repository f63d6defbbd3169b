package linotls

import "golang.org/x/xerrors"

// Feed is a live sequence of configurations. The acceptor applies each
// configuration received on the feed as soon as it learns about it, between
// two accepts.
//
// The feed may be closed: the acceptor then keeps serving with the last
// configuration applied, forever.
type Feed <-chan *Config

// StaticFeed returns a feed carrying the given configuration and nothing
// else afterwards. The configuration is compiled right away so that a broken
// one is reported here rather than at accept time.
func StaticFeed(cfg *Config) (Feed, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, xerrors.Errorf("invalid configuration: %v", err)
	}

	feed := make(chan *Config, 1)
	feed <- cfg
	close(feed)

	return feed, nil
}

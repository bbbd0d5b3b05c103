package host

// exchangeConfig holds the per-call parameters of an in-place exchange.
type exchangeConfig struct {
	used          int
	usedSet       bool
	allowMutation bool
}

func defaultExchangeConfig() exchangeConfig {
	return exchangeConfig{allowMutation: true}
}

// ExchangeOption configures a single in-place exchange.
type ExchangeOption func(*exchangeConfig)

// WithUsedSize sets the logical size of the data in the buffer.
// Defaults to the buffer capacity. Only revision 3 and later pass it on.
func WithUsedSize(n int) ExchangeOption {
	return func(c *exchangeConfig) {
		c.used = n
		c.usedSet = true
	}
}

// WithMutation allows or forbids the library to write into the buffer.
// When forbidden the exchange runs in query mode: the buffer is left untouched
// and the result reports how many bytes the library would write.
func WithMutation(allowed bool) ExchangeOption {
	return func(c *exchangeConfig) {
		c.allowMutation = allowed
	}
}

func newExchangeConfig(capacity int, opts []ExchangeOption) exchangeConfig {
	cfg := defaultExchangeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.usedSet {
		cfg.used = capacity
	}
	return cfg
}

package attenuator

import (
	"io"
	"log/slog"
	"time"
)

// Config carries the Controller settings. Build one with NewConfigBuilder.
type Config struct {
	Dialer Dialer
	Logger *slog.Logger
	// MaxRetries is the number of additional receive attempts after the
	// first chunk before a response is declared timed out.
	MaxRetries int
	// ChunkSize is the receive buffer size per read.
	ChunkSize int
	// SettleDelay is the fixed wait after a reset command before the
	// device is touched again.
	SettleDelay time.Duration
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 2048
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 2 * time.Second
	}
}

// ConfigBuilder assembles a Config fluently.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

func (b *ConfigBuilder) WithMaxRetries(n int) *ConfigBuilder {
	b.config.MaxRetries = n
	return b
}

func (b *ConfigBuilder) WithChunkSize(n int) *ConfigBuilder {
	b.config.ChunkSize = n
	return b
}

func (b *ConfigBuilder) WithSettleDelay(d time.Duration) *ConfigBuilder {
	b.config.SettleDelay = d
	return b
}

// Build validates the assembled Config and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	if err := b.config.validate(); err != nil {
		return Config{}, err
	}
	b.config.setDefaults()
	return b.config, nil
}

package tftp

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the on-disk YAML shape for a tftpd deployment. Every
// field is optional; a zero value leaves the corresponding Builder
// default untouched.
type Config struct {
	ListenAddress string `yaml:"listen_address"`

	Root      string `yaml:"root"`
	ReadOnly  bool   `yaml:"read_only"`
	WriteOnly bool   `yaml:"write_only"`

	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	MaxSendRetries        int    `yaml:"max_send_retries"`
	BlockSizeLimit        uint16 `yaml:"block_size_limit"`
	WindowSizeLimit       uint16 `yaml:"window_size_limit"`
	IgnoreClientTimeout   bool   `yaml:"ignore_client_timeout"`
	IgnoreClientBlockSize bool   `yaml:"ignore_client_block_size"`
	ReceiveBufferBytes    int    `yaml:"receive_buffer_bytes"`
}

// LoadConfig reads and parses a YAML config file at path. Validation
// is deferred to the Builder that consumes it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyConfig layers cfg's non-zero fields onto the Builder, then
// attaches a DirHandler rooted at cfg.Root in the mode cfg selects.
// Call this instead of hand-wiring each With* method when the server
// is driven entirely by a config file.
func (b *Builder) ApplyConfig(cfg *Config) (*Builder, error) {
	if cfg.ListenAddress != "" {
		b.WithListenAddress(cfg.ListenAddress)
	}
	if cfg.TimeoutSeconds > 0 {
		b.WithTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)
	}
	if cfg.MaxSendRetries > 0 {
		b.WithMaxSendRetries(uint32(cfg.MaxSendRetries))
	}
	if cfg.BlockSizeLimit > 0 {
		b.WithBlockSizeLimit(cfg.BlockSizeLimit)
	}
	if cfg.WindowSizeLimit > 0 {
		b.WithWindowSizeLimit(cfg.WindowSizeLimit)
	}
	if cfg.IgnoreClientTimeout {
		b.WithIgnoreClientTimeout(true)
	}
	if cfg.IgnoreClientBlockSize {
		b.WithIgnoreClientBlockSize(true)
	}
	if cfg.ReceiveBufferBytes > 0 {
		b.WithReceiveBufferBytes(cfg.ReceiveBufferBytes)
	}

	if cfg.Root != "" {
		mode := DirReadWrite
		switch {
		case cfg.ReadOnly:
			mode = DirReadOnly
		case cfg.WriteOnly:
			mode = DirWriteOnly
		}
		h, err := newDirHandler(cfg.Root, mode)
		if err != nil {
			return nil, err
		}
		b.handler = h
	}

	return b, nil
}

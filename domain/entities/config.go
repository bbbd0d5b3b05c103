package entities

// DefaultBufferSize is the exchange buffer size used when none is configured.
const DefaultBufferSize = 64

// MaxBufferSize bounds configured buffer sizes (16MB).
const MaxBufferSize = 16 * 1024 * 1024

// ProtobufImplementationEnv is the variable the legacy loader set so that a
// co-resident protobuf runtime picks its C++ implementation.
const ProtobufImplementationEnv = "PROTOCOL_BUFFERS_PYTHON_IMPLEMENTATION"

// Config is the file-based host configuration.
type Config struct {
	// Env is exported into the process environment while the library is loaded.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty" jsonschema:"description=Environment variables set on load and unset on unload"`

	// Library is the path of the module to load.
	Library string `yaml:"library" json:"library" validate:"required" jsonschema:"required,description=Path of the shared object or WebAssembly module"`

	// Format forces the module format instead of guessing from the extension.
	Format Format `yaml:"format,omitempty" json:"format,omitempty" validate:"omitempty,oneof=native wasm" jsonschema:"enum=native,enum=wasm"`

	// LogLevel is the logging verbosity ("debug", "info", "warn", "error").
	LogLevel string `yaml:"log_level,omitempty" json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`

	// BufferSize is the capacity of the exchange buffer in bytes.
	BufferSize int `yaml:"buffer_size,omitempty" json:"buffer_size,omitempty" validate:"min=1,max=16777216" jsonschema:"minimum=1,maximum=16777216,default=64"`

	// Revision pins the exchange_inplace revision (2, 3 or 4).
	Revision Revision `yaml:"revision,omitempty" json:"revision,omitempty" validate:"omitempty,oneof=2 3 4" jsonschema:"enum=2,enum=3,enum=4"`
}

// DefaultConfig returns a configuration with defaults applied and no library set.
func DefaultConfig() Config {
	return Config{
		BufferSize: DefaultBufferSize,
		LogLevel:   "info",
	}
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

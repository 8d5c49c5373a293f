package configuration

import (
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/colabsync/colabsync/pkg/encoding"
	"github.com/colabsync/colabsync/pkg/logging"
	"github.com/colabsync/colabsync/pkg/negotiation/filelist"
)

const (
	// DefaultResponseTimeout is the default per-step response timeout.
	DefaultResponseTimeout = time.Minute
	// DefaultAcceptanceTimeout is the default timeout for invitation
	// acceptance, which is gated on human action.
	DefaultAcceptanceTimeout = 10 * time.Minute
	// DefaultArchiveTimeout is the default timeout for file list responses and
	// archive transfers.
	DefaultArchiveTimeout = time.Hour
	// DefaultPollInterval is the default interval at which external
	// cancellation is sampled while waiting.
	DefaultPollInterval = time.Second
	// DefaultChunkSize is the default archive transfer chunk size.
	DefaultChunkSize = 64 * 1024
	// DefaultChecksumCacheSize is the default number of cached checksums.
	DefaultChecksumCacheSize = 4096
)

// Logging contains logging configuration.
type Logging struct {
	// Level is the log level name.
	Level string `yaml:"level"`
}

// Negotiation contains negotiation timing and compatibility configuration.
type Negotiation struct {
	// ResponseTimeout bounds each request/response step.
	ResponseTimeout time.Duration `yaml:"responseTimeout"`
	// AcceptanceTimeout bounds the wait for invitation acceptance.
	AcceptanceTimeout time.Duration `yaml:"acceptanceTimeout"`
	// ArchiveTimeout bounds the wait for file lists and archives.
	ArchiveTimeout time.Duration `yaml:"archiveTimeout"`
	// PollInterval is the interval at which external cancellation is sampled.
	PollInterval time.Duration `yaml:"pollInterval"`
	// StrictVersion causes incompatible versions to fail without prompting.
	StrictVersion bool `yaml:"strictVersion"`
}

// Transfer contains archive transfer configuration.
type Transfer struct {
	// ChunkSize is the size of archive transfer chunks.
	ChunkSize ByteSize `yaml:"chunkSize"`
}

// Sharing contains project sharing configuration.
type Sharing struct {
	// Ignore is a list of selection patterns excluding resources from
	// sharing.
	Ignore []string `yaml:"ignore,omitempty"`
	// ChecksumCacheSize is the number of file checksums cached per project.
	ChecksumCacheSize int `yaml:"checksumCacheSize"`
}

// Configuration represents the colabsync configuration file.
type Configuration struct {
	// Logging is the logging configuration.
	Logging Logging `yaml:"logging"`
	// Negotiation is the negotiation configuration.
	Negotiation Negotiation `yaml:"negotiation"`
	// Transfer is the transfer configuration.
	Transfer Transfer `yaml:"transfer"`
	// Sharing is the sharing configuration.
	Sharing Sharing `yaml:"sharing"`
}

// Default returns a configuration populated with default values. The returned
// structure is not re-used, so its members can be freely mutated.
func Default() *Configuration {
	return &Configuration{
		Logging: Logging{
			Level: logging.LevelInfo.String(),
		},
		Negotiation: Negotiation{
			ResponseTimeout:   DefaultResponseTimeout,
			AcceptanceTimeout: DefaultAcceptanceTimeout,
			ArchiveTimeout:    DefaultArchiveTimeout,
			PollInterval:      DefaultPollInterval,
		},
		Transfer: Transfer{
			ChunkSize: DefaultChunkSize,
		},
		Sharing: Sharing{
			ChecksumCacheSize: DefaultChecksumCacheSize,
		},
	}
}

// Load loads the configuration file at the specified path. Values not
// specified in the file retain their defaults. If the file does not exist, the
// default configuration is returned. The result is validated before being
// returned.
func Load(path string) (*Configuration, error) {
	// Create a configuration that we can decode into. Any values not present
	// in the file will retain their defaults.
	result := Default()

	// Attempt to load the configuration from disk.
	if err := encoding.LoadAndUnmarshalYAML(path, result); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "unable to load configuration")
		}
	}

	// Validate the result.
	if err := result.EnsureValid(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	// Success.
	return result, nil
}

// Save saves the configuration to the specified path.
func (c *Configuration) Save(path string, logger *logging.Logger) error {
	return encoding.MarshalAndSaveYAML(path, c, logger)
}

// LogLevel returns the configured log level.
func (c *Configuration) LogLevel() logging.Level {
	level, _ := logging.NameToLevel(c.Logging.Level)
	return level
}

// EnsureValid ensures that Configuration's invariants are respected.
func (c *Configuration) EnsureValid() error {
	// A nil configuration is not considered valid.
	if c == nil {
		return errors.New("nil configuration")
	}

	// Verify the log level.
	if _, ok := logging.NameToLevel(c.Logging.Level); !ok {
		return errors.Errorf("invalid log level: %q", c.Logging.Level)
	}

	// Verify timing.
	if c.Negotiation.ResponseTimeout <= 0 {
		return errors.New("response timeout must be positive")
	} else if c.Negotiation.AcceptanceTimeout <= 0 {
		return errors.New("acceptance timeout must be positive")
	} else if c.Negotiation.ArchiveTimeout <= 0 {
		return errors.New("archive timeout must be positive")
	} else if c.Negotiation.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}

	// Verify transfer parameters.
	if c.Transfer.ChunkSize == 0 {
		return errors.New("chunk size must be non-zero")
	}

	// Verify sharing parameters.
	for _, pattern := range c.Sharing.Ignore {
		if !filelist.ValidPattern(pattern) {
			return errors.Errorf("invalid ignore pattern: %q", pattern)
		}
	}
	if c.Sharing.ChecksumCacheSize < 0 {
		return errors.New("checksum cache size must be non-negative")
	}

	// Success.
	return nil
}

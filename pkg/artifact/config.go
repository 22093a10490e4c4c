// Package artifact mirrors job inputs and outputs through an S3-compatible
// object store, giving runs a durable artifact trail independent of the
// resource's filesystem.
package artifact

// Config configures an artifact store.
//
// Authentication uses the AWS SDK v2 default credential chain; for
// S3-compatible stores (MinIO, Wasabi, DigitalOcean Spaces), set Endpoint
// and typically ForcePathStyle.
type Config struct {
	// Bucket is the bucket name (required).
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// Prefix is prepended to every object key. Optional.
	Prefix string `mapstructure:"prefix" yaml:"prefix"`

	// Region is the AWS region. Defaults to us-east-1 for AWS S3 when not
	// resolvable from the environment; no default when Endpoint is set.
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Profile is the AWS shared-config profile name.
	Profile string `mapstructure:"profile" yaml:"profile"`

	// ForcePathStyle forces path-style URLs (bucket in path, not
	// subdomain). Required for most S3-compatible stores.
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "artifact config: " + e.Field + ": " + e.Message
}

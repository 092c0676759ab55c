package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for mkts
type Config struct {
	Client ClientConfig
	Write  WriteConfig
	Export ExportConfig
	Log    LogConfig
}

type ClientConfig struct {
	Endpoint        string
	Protocol        string // msgpack or json
	Timeout         int    // seconds
	Compression     string // none or gzip
	MaxResponseSize int64  // Maximum reply size in bytes (applies to both compressed and decompressed)
	TruncateStrings bool   // Cut over-length strings on write instead of failing
	BreakerFailures int    // Consecutive connection failures before calls are refused (0 = disabled)
	BreakerCooldown int    // seconds
}

type WriteConfig struct {
	Schema           string // Default CSV column layout, e.g. "Epoch:i8,Open:f4,Close:f4"
	IsVariableLength bool
}

// ExportConfig holds object store credentials for s3:// and az:// export targets
type ExportConfig struct {
	S3Region             string
	S3Endpoint           string // MinIO or other S3 compatible endpoint
	S3AccessKey          string
	S3SecretKey          string
	S3PathStyle          bool
	AzureConnection      string
	AzureAccountName     string
	AzureAccountKey      string
	AzureSASToken        string
	AzureManagedIdentity bool
	AzureEndpoint        string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment and config file
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("MKTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	v.SetConfigName("mkts")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/mkts/")
	v.AddConfigPath("$HOME/.mkts/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	maxResponseSize, err := ParseSize(v.GetString("client.max_response_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid client.max_response_size: %w", err)
	}

	cfg := &Config{
		Client: ClientConfig{
			Endpoint:        v.GetString("client.endpoint"),
			Protocol:        strings.ToLower(v.GetString("client.protocol")),
			Timeout:         v.GetInt("client.timeout"),
			Compression:     strings.ToLower(v.GetString("client.compression")),
			MaxResponseSize: maxResponseSize,
			TruncateStrings: v.GetBool("client.truncate_strings"),
			BreakerFailures: v.GetInt("client.breaker_failures"),
			BreakerCooldown: v.GetInt("client.breaker_cooldown"),
		},
		Write: WriteConfig{
			Schema:           v.GetString("write.schema"),
			IsVariableLength: v.GetBool("write.is_variable_length"),
		},
		Export: ExportConfig{
			S3Region:             v.GetString("export.s3_region"),
			S3Endpoint:           v.GetString("export.s3_endpoint"),
			S3AccessKey:          v.GetString("export.s3_access_key"),
			S3SecretKey:          v.GetString("export.s3_secret_key"),
			S3PathStyle:          v.GetBool("export.s3_path_style"),
			AzureConnection:      v.GetString("export.azure_connection_string"),
			AzureAccountName:     v.GetString("export.azure_account_name"),
			AzureAccountKey:      v.GetString("export.azure_account_key"),
			AzureSASToken:        v.GetString("export.azure_sas_token"),
			AzureManagedIdentity: v.GetBool("export.azure_use_managed_identity"),
			AzureEndpoint:        v.GetString("export.azure_endpoint"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Client.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Client defaults
	v.SetDefault("client.endpoint", "http://localhost:5993")
	v.SetDefault("client.protocol", "msgpack")
	v.SetDefault("client.timeout", 30)
	v.SetDefault("client.compression", "none")
	v.SetDefault("client.max_response_size", "512MB")
	v.SetDefault("client.truncate_strings", false)
	v.SetDefault("client.breaker_failures", 5)
	v.SetDefault("client.breaker_cooldown", 30)

	// Write defaults
	v.SetDefault("write.schema", "")
	v.SetDefault("write.is_variable_length", false)

	// Export defaults
	v.SetDefault("export.s3_region", "us-east-1")
	v.SetDefault("export.s3_endpoint", "")
	v.SetDefault("export.s3_access_key", "")
	v.SetDefault("export.s3_secret_key", "")
	v.SetDefault("export.s3_path_style", false)
	v.SetDefault("export.azure_connection_string", "")
	v.SetDefault("export.azure_account_name", "")
	v.SetDefault("export.azure_account_key", "")
	v.SetDefault("export.azure_sas_token", "")
	v.SetDefault("export.azure_use_managed_identity", false)
	v.SetDefault("export.azure_endpoint", "")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks the client settings
func (cfg *ClientConfig) Validate() error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("client.endpoint is required")
	}
	if !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		return fmt.Errorf("client.endpoint must be an http(s) URL: %s", cfg.Endpoint)
	}
	switch cfg.Protocol {
	case "msgpack", "json":
	default:
		return fmt.Errorf("unsupported client.protocol %q (use msgpack or json)", cfg.Protocol)
	}
	switch cfg.Compression {
	case "none", "gzip":
	default:
		return fmt.Errorf("unsupported client.compression %q (use none or gzip)", cfg.Compression)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("client.timeout must be positive, got %d", cfg.Timeout)
	}
	if cfg.BreakerFailures < 0 || cfg.BreakerCooldown < 0 {
		return fmt.Errorf("client.breaker_failures and client.breaker_cooldown must not be negative")
	}
	return nil
}

// ParseSize parses a human-readable size string (e.g., "1GB", "500MB", "100KB") to bytes.
// Supports: B, KB, MB, GB (case-insensitive).
// Returns the size in bytes or an error if the format is invalid.
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Define multipliers (order matters: check longer suffixes first)
	type unitInfo struct {
		suffix     string
		multiplier int64
	}
	units := []unitInfo{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, unit := range units {
		if strings.HasSuffix(sizeStr, unit.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(sizeStr, unit.suffix))

			var num float64
			var trailing string
			n, _ := fmt.Sscanf(numStr, "%f%s", &num, &trailing)
			if n == 0 {
				return 0, fmt.Errorf("invalid size number: %s", numStr)
			}
			if trailing != "" {
				return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
			}
			if num < 0 {
				return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
			}
			return int64(num * float64(unit.multiplier)), nil
		}
	}

	// Plain number (bytes)
	var num int64
	var trailing string
	n, _ := fmt.Sscanf(sizeStr, "%d%s", &num, &trailing)
	if n == 0 || trailing != "" {
		return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
	}
	if num < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
	}
	return num, nil
}

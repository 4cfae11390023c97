package config

import (
	"encoding/json"
	"os"

	"github.com/clinsafe/medledger/internal/flagx"
	"github.com/clinsafe/medledger/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "15m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its non-empty fields are copied
// into the runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	RedisAddr                    string         `json:"redis_addr"`
	RedisPassword                string         `json:"redis_password"`
	RedisDB                      int            `json:"redis_db"`
	LoginRateLimit               int            `json:"login_rate_limit"`
	LoginRateWindow              timex.Duration `json:"login_rate_window"`
	AuditQueueSize               int            `json:"audit_queue_size"`
	AuditRetryAttempts           int            `json:"audit_retry_attempts"`
	AuditRetryBaseDelay          timex.Duration `json:"audit_retry_base_delay"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	S3PresignValidityDuration    timex.Duration `json:"s3_presign_validity_duration"`
	LogLevel                     string         `json:"log_level"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path is taken from the -c or -config command-line flags; if
// neither is set, no file is loaded. Keys absent from the file keep their
// current (default) values, so partial overlays are fine. If the file cannot
// be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.ConfigPathFlag(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != "" {
		config.EndpointAddrHTTP = c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.RedisAddr != "" {
		config.RedisAddr = c.RedisAddr
	}
	if c.RedisPassword != "" {
		config.RedisPassword = c.RedisPassword
	}
	if c.RedisDB != 0 {
		config.RedisDB = c.RedisDB
	}
	if c.LoginRateLimit != 0 {
		config.LoginRateLimit = c.LoginRateLimit
	}
	if c.LoginRateWindow.Duration != 0 {
		config.LoginRateWindow = c.LoginRateWindow.Duration
	}
	if c.AuditQueueSize != 0 {
		config.AuditQueueSize = c.AuditQueueSize
	}
	if c.AuditRetryAttempts != 0 {
		config.AuditRetryAttempts = c.AuditRetryAttempts
	}
	if c.AuditRetryBaseDelay.Duration != 0 {
		config.AuditRetryBaseDelay = c.AuditRetryBaseDelay.Duration
	}
	if c.S3RootUser != "" {
		config.S3RootUser = c.S3RootUser
	}
	if c.S3RootPassword != "" {
		config.S3RootPassword = c.S3RootPassword
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
	if c.S3PresignValidityDuration.Duration != 0 {
		config.S3PresignValidityDuration = c.S3PresignValidityDuration.Duration
	}
	if c.LogLevel != "" {
		config.LogLevel = c.LogLevel
	}
}

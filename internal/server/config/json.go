package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/pointshare/internal/flagx"
	"github.com/dmitrijs2005/pointshare/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "90s" strings and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	DatabaseDSN      string `json:"database_dsn"`
	LogLevel         string `json:"log_level"`

	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	MaxRefreshTokensPerAccount   int            `json:"max_refresh_tokens_per_account"`

	ConfirmationTokenValidityDuration timex.Duration `json:"confirmation_token_validity_duration"`
	ConfirmationMinimalDelay          timex.Duration `json:"confirmation_minimal_delay"`
	ConfirmationActivationURL         string         `json:"confirmation_activation_url"`

	VoteMinPoints     float64 `json:"vote_min_points"`
	VoteMaxPoints     float64 `json:"vote_max_points"`
	SeedPoints        float64 `json:"seed_points"`
	BootstrapAccounts bool    `json:"bootstrap_accounts"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	EmailAPIKey string `json:"email_api_key"`
	EmailFrom   string `json:"email_from"`

	NotifierKind string `json:"notifier"`
	RedisURL     string `json:"redis_url"`

	CleanupSchedule string  `json:"cleanup_schedule"`
	RateLimitRPS    float64 `json:"rate_limit_rps"`
	RateLimitBurst  int     `json:"rate_limit_burst"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddrGRPC:                  c.EndpointAddrGRPC,
		EndpointAddrHTTP:                  c.EndpointAddrHTTP,
		DatabaseDSN:                       c.DatabaseDSN,
		LogLevel:                          c.LogLevel,
		SecretKey:                         c.SecretKey,
		AccessTokenValidityDuration:       timex.Duration{Duration: c.AccessTokenValidityDuration},
		RefreshTokenValidityDuration:      timex.Duration{Duration: c.RefreshTokenValidityDuration},
		MaxRefreshTokensPerAccount:        c.MaxRefreshTokensPerAccount,
		ConfirmationTokenValidityDuration: timex.Duration{Duration: c.ConfirmationTokenValidityDuration},
		ConfirmationMinimalDelay:          timex.Duration{Duration: c.ConfirmationMinimalDelay},
		ConfirmationActivationURL:         c.ConfirmationActivationURL,
		VoteMinPoints:                     c.VoteMinPoints,
		VoteMaxPoints:                     c.VoteMaxPoints,
		SeedPoints:                        c.SeedPoints,
		BootstrapAccounts:                 c.BootstrapAccounts,
		S3RootUser:                        c.S3RootUser,
		S3RootPassword:                    c.S3RootPassword,
		S3Bucket:                          c.S3Bucket,
		S3Region:                          c.S3Region,
		S3BaseEndpoint:                    c.S3BaseEndpoint,
		EmailAPIKey:                       c.EmailAPIKey,
		EmailFrom:                         c.EmailFrom,
		NotifierKind:                      c.NotifierKind,
		RedisURL:                          c.RedisURL,
		CleanupSchedule:                   c.CleanupSchedule,
		RateLimitRPS:                      c.RateLimitRPS,
		RateLimitBurst:                    c.RateLimitBurst,
	}
}

func (j *JsonConfig) apply(c *Config) {
	c.EndpointAddrGRPC = j.EndpointAddrGRPC
	c.EndpointAddrHTTP = j.EndpointAddrHTTP
	c.DatabaseDSN = j.DatabaseDSN
	c.LogLevel = j.LogLevel
	c.SecretKey = j.SecretKey
	c.AccessTokenValidityDuration = time.Duration(j.AccessTokenValidityDuration.Duration)
	c.RefreshTokenValidityDuration = time.Duration(j.RefreshTokenValidityDuration.Duration)
	c.MaxRefreshTokensPerAccount = j.MaxRefreshTokensPerAccount
	c.ConfirmationTokenValidityDuration = time.Duration(j.ConfirmationTokenValidityDuration.Duration)
	c.ConfirmationMinimalDelay = time.Duration(j.ConfirmationMinimalDelay.Duration)
	c.ConfirmationActivationURL = j.ConfirmationActivationURL
	c.VoteMinPoints = j.VoteMinPoints
	c.VoteMaxPoints = j.VoteMaxPoints
	c.SeedPoints = j.SeedPoints
	c.BootstrapAccounts = j.BootstrapAccounts
	c.S3RootUser = j.S3RootUser
	c.S3RootPassword = j.S3RootPassword
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
	c.EmailAPIKey = j.EmailAPIKey
	c.EmailFrom = j.EmailFrom
	c.NotifierKind = j.NotifierKind
	c.RedisURL = j.RedisURL
	c.CleanupSchedule = j.CleanupSchedule
	c.RateLimitRPS = j.RateLimitRPS
	c.RateLimitBurst = j.RateLimitBurst
}

// parseJson overlays the JSON file named by -c/-config onto config. Keys
// absent from the file keep their current values. Unreadable files or
// invalid JSON cause a panic.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	c.apply(config)
}

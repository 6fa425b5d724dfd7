package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// envPrefix namespaces every variable read by parseEnv.
const envPrefix = "POINTSHARE_"

// loadDotEnv is a seam for tests; a missing .env file is not an error.
var loadDotEnv = func() { _ = godotenv.Load() }

// parseEnv overlays POINTSHARE_* environment variables onto config. Values
// that fail to parse cause a panic, like malformed JSON or flags do.
func parseEnv(config *Config) {
	loadDotEnv()

	envString("GRPC_ADDR", &config.EndpointAddrGRPC)
	envString("HTTP_ADDR", &config.EndpointAddrHTTP)
	envString("DATABASE_DSN", &config.DatabaseDSN)
	envString("LOG_LEVEL", &config.LogLevel)

	envString("SECRET_KEY", &config.SecretKey)
	envDuration("ACCESS_TOKEN_TTL", &config.AccessTokenValidityDuration)
	envDuration("REFRESH_TOKEN_TTL", &config.RefreshTokenValidityDuration)
	envInt("MAX_REFRESH_TOKENS", &config.MaxRefreshTokensPerAccount)

	envDuration("CONFIRMATION_TOKEN_TTL", &config.ConfirmationTokenValidityDuration)
	envDuration("CONFIRMATION_MIN_DELAY", &config.ConfirmationMinimalDelay)
	envString("CONFIRMATION_URL", &config.ConfirmationActivationURL)

	envFloat("VOTE_MIN_POINTS", &config.VoteMinPoints)
	envFloat("VOTE_MAX_POINTS", &config.VoteMaxPoints)
	envFloat("SEED_POINTS", &config.SeedPoints)
	envBool("BOOTSTRAP_ACCOUNTS", &config.BootstrapAccounts)

	envString("S3_ROOT_USER", &config.S3RootUser)
	envString("S3_ROOT_PASSWORD", &config.S3RootPassword)
	envString("S3_BUCKET", &config.S3Bucket)
	envString("S3_REGION", &config.S3Region)
	envString("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)

	envString("EMAIL_API_KEY", &config.EmailAPIKey)
	envString("EMAIL_FROM", &config.EmailFrom)

	envString("NOTIFIER", &config.NotifierKind)
	envString("REDIS_URL", &config.RedisURL)

	envString("CLEANUP_SCHEDULE", &config.CleanupSchedule)
	envFloat("RATE_LIMIT_RPS", &config.RateLimitRPS)
	envInt("RATE_LIMIT_BURST", &config.RateLimitBurst)
}

func lookup(name string) (string, bool) {
	return os.LookupEnv(envPrefix + name)
}

func envString(name string, dst *string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func envDuration(name string, dst *time.Duration) {
	if v, ok := lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(fmt.Errorf("%s%s: %w", envPrefix, name, err))
		}
		*dst = d
	}
}

func envInt(name string, dst *int) {
	if v, ok := lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(fmt.Errorf("%s%s: %w", envPrefix, name, err))
		}
		*dst = n
	}
}

func envFloat(name string, dst *float64) {
	if v, ok := lookup(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			panic(fmt.Errorf("%s%s: %w", envPrefix, name, err))
		}
		*dst = f
	}
}

func envBool(name string, dst *bool) {
	if v, ok := lookup(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(fmt.Errorf("%s%s: %w", envPrefix, name, err))
		}
		*dst = b
	}
}

package app

import (
	"strings"
	"time"

	"github.com/teknokomo/universo-platformo-backend/internal/pkg/logger"
	"github.com/teknokomo/universo-platformo-backend/internal/utils"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string

	HTTPAddr    string
	CORSOrigins []string

	RedisAddr     string
	RedisPassword string

	ApplyLockWait  time.Duration
	ApplyLockPoll  time.Duration
	StatusCacheTTL time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	corsRaw := utils.GetEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5174", log)
	var origins []string
	for _, o := range strings.Split(corsRaw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		ServiceName: utils.GetEnv("SERVICE_NAME", "universo-platformo", log),
		Environment: utils.GetEnv("ENVIRONMENT", "development", log),
		Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),

		HTTPAddr:    utils.GetEnv("HTTP_ADDR", ":8080", log),
		CORSOrigins: origins,

		RedisAddr:     utils.GetEnv("REDIS_ADDR", "", log),
		RedisPassword: utils.GetEnv("REDIS_PASSWORD", "", log),

		ApplyLockWait:  time.Duration(utils.GetEnvAsInt("APPLY_LOCK_WAIT_SECONDS", 10, log)) * time.Second,
		ApplyLockPoll:  time.Duration(utils.GetEnvAsInt("APPLY_LOCK_POLL_MILLIS", 250, log)) * time.Millisecond,
		StatusCacheTTL: time.Duration(utils.GetEnvAsInt("STATUS_CACHE_TTL_SECONDS", 5, log)) * time.Second,
	}
}

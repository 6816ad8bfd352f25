package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load applies the first env file found among envFilePath (each searched
// upwards from the working directory), or ./.env when none is found, and
// then builds App from the process environment. Variables already set in
// the environment win over file values.
func Load(envFilePath ...string) (*App, error) {
	logger := slog.Default()
	if path, ok := loadEnvFile(logger, envFilePath); ok {
		logger.Info("Loaded environment file", "path", path)
	} else if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using process environment only")
	}

	var cfg App
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info("App config loaded",
		"env", cfg.Env,
		"db_driver", cfg.DB.Driver,
		"db", maskValue(cfg.DB.Url),
		"db_lock_timeout", cfg.DB.LockTimeout,
		"idgen_worker_id", cfg.IDGen.WorkerID,
		"idgen_datacenter_id", cfg.IDGen.DatacenterID,
		"welcome_bonus", cfg.Bank.WelcomeBonus.StringFixed(2),
		"eventbus_driver", cfg.EventBus.Driver,
		"idempotency_driver", cfg.Idempotency.Driver,
		"rate_limit", fmt.Sprintf("%d/%s", cfg.RateLimit.MaxRequests, cfg.RateLimit.Window),
		"auth_jwt_expiry", cfg.Auth.Jwt.Expiry,
	)
	return &cfg, nil
}

func loadEnvFile(logger *slog.Logger, paths []string) (string, bool) {
	for _, path := range paths {
		found, err := FindEnvTest(path)
		if err != nil {
			logger.Debug("Environment file not found", "path", path)
			continue
		}
		if err := godotenv.Load(found); err != nil {
			logger.Error("Failed to load environment file", "path", found, "error", err)
			continue
		}
		return found, true
	}
	return "", false
}

// Validate rejects settings the bank core cannot run with. Generator ids are
// checked by idgen itself when the generator is built.
func (c *App) Validate() error {
	var errs []error
	if c.DB.LockTimeout <= 0 {
		errs = append(errs, errors.New("DATABASE_LOCK_TIMEOUT must be positive"))
	}
	if c.Bank.WelcomeBonus.IsNegative() {
		errs = append(errs, errors.New("BANK_WELCOME_BONUS must not be negative"))
	}
	if c.Bank.OTPLength < 4 {
		errs = append(errs, errors.New("BANK_OTP_LENGTH must be at least 4"))
	}
	if c.Bank.OTPTTL <= 0 {
		errs = append(errs, errors.New("BANK_OTP_TTL must be positive"))
	}
	if c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX_REQUESTS must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func maskValue(key string) string {
	if len(key) <= 6 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-4:]
}

package config

import (
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/joeshaw/envdecode"
	errwrap "github.com/pkg/errors"
	"github.com/subosito/gotenv"
)

// Config is the resolved settings bundle for the slow query reporting
// pipeline. It is built once by Load and treated as immutable afterwards;
// nothing in the pipeline writes to it after validation.
type Config struct {
	ThresholdMs          int    `env:"QR_THRESHOLD_MS,default=500" validate:"gt=0"`
	APIEndpoint          string `env:"QR_API_ENDPOINT" validate:"required,url"`
	APIKey               string `env:"QR_API_KEY" validate:"required"`
	ProjectID            string `env:"QR_PROJECT_ID" validate:"required"`
	CaptureStack         bool   `env:"QR_CAPTURE_STACK,default=true"`
	MaxStack             int    `env:"QR_MAX_STACK,default=20" validate:"gt=0"`
	MaxQuery             int    `env:"QR_MAX_QUERY,default=5000" validate:"gt=0"`
	TimeoutMs            int    `env:"QR_TIMEOUT_MS,default=5000" validate:"gt=0"`
	EnableDev            bool   `env:"QR_ENABLE_DEV,default=true"`
	EnableProd           bool   `env:"QR_ENABLE_PROD,default=false"`
	ExecutionPlanEnabled bool   `env:"QR_EXECUTION_PLAN,default=false"`
	QueueConcurrency     int    `env:"QR_QUEUE_CONCURRENCY,default=1" validate:"gte=1"`
	QueueIntervalCap     int    `env:"QR_QUEUE_INTERVAL_CAP,default=0" validate:"gte=0"`
	QueueIntervalInMs    int    `env:"QR_QUEUE_INTERVAL_MS,default=0" validate:"gte=0"`
	ContextType          string `env:"QR_CONTEXT_TYPE,default=backend"`
	Environment          string `env:"APP_ENV,default=development"`
	ApplicationName      string `env:"QR_APP_NAME"`
	Version              string `env:"QR_APP_VERSION"`
	LogLevel             string `env:"QR_LOG_LEVEL,default=info"`
}

// Override carries explicit caller supplied settings. Nil fields keep the
// value resolved from the environment (or its hardcoded default), so the
// effective precedence is override > environment > default, decided once at
// load time and never re-resolved.
type Override struct {
	ThresholdMs          *int
	APIEndpoint          *string
	APIKey               *string
	ProjectID            *string
	CaptureStack         *bool
	MaxStack             *int
	MaxQuery             *int
	TimeoutMs            *int
	EnableDev            *bool
	EnableProd           *bool
	ExecutionPlanEnabled *bool
	QueueConcurrency     *int
	QueueIntervalCap     *int
	QueueIntervalInMs    *int
	ContextType          *string
	Environment          *string
	ApplicationName      *string
	Version              *string
	LogLevel             *string
}

// Load resolves the configuration from an optional .env file, the process
// environment, and the supplied overrides, in that order of increasing
// precedence. The result is not validated here; call Validate separately so
// the caller can decide how to degrade.
func Load(override *Override) (Config, error) {
	funcName := "config.Load"

	// Missing .env is the normal case in production.
	_ = gotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, errwrap.Wrap(err, funcName)
	}
	cfg.merge(override)
	return cfg, nil
}

func (c *Config) merge(o *Override) {
	if o == nil {
		return
	}
	if o.ThresholdMs != nil {
		c.ThresholdMs = *o.ThresholdMs
	}
	if o.APIEndpoint != nil {
		c.APIEndpoint = *o.APIEndpoint
	}
	if o.APIKey != nil {
		c.APIKey = *o.APIKey
	}
	if o.ProjectID != nil {
		c.ProjectID = *o.ProjectID
	}
	if o.CaptureStack != nil {
		c.CaptureStack = *o.CaptureStack
	}
	if o.MaxStack != nil {
		c.MaxStack = *o.MaxStack
	}
	if o.MaxQuery != nil {
		c.MaxQuery = *o.MaxQuery
	}
	if o.TimeoutMs != nil {
		c.TimeoutMs = *o.TimeoutMs
	}
	if o.EnableDev != nil {
		c.EnableDev = *o.EnableDev
	}
	if o.EnableProd != nil {
		c.EnableProd = *o.EnableProd
	}
	if o.ExecutionPlanEnabled != nil {
		c.ExecutionPlanEnabled = *o.ExecutionPlanEnabled
	}
	if o.QueueConcurrency != nil {
		c.QueueConcurrency = *o.QueueConcurrency
	}
	if o.QueueIntervalCap != nil {
		c.QueueIntervalCap = *o.QueueIntervalCap
	}
	if o.QueueIntervalInMs != nil {
		c.QueueIntervalInMs = *o.QueueIntervalInMs
	}
	if o.ContextType != nil {
		c.ContextType = *o.ContextType
	}
	if o.Environment != nil {
		c.Environment = *o.Environment
	}
	if o.ApplicationName != nil {
		c.ApplicationName = *o.ApplicationName
	}
	if o.Version != nil {
		c.Version = *o.Version
	}
	if o.LogLevel != nil {
		c.LogLevel = *o.LogLevel
	}
}

// Validate checks the resolved configuration once. The returned error names
// the first offending field in plain English so misconfiguration is obvious
// from a single log line.
func (c Config) Validate() error {
	funcName := "config.Validate"

	validate := validator.New()
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	if err := entranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return errwrap.Wrap(err, funcName)
	}

	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		return errwrap.Wrap(errwrap.New(verrs[0].Translate(trans)), funcName)
	}
	return errwrap.Wrap(err, funcName)
}

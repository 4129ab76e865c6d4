package config

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/spf13/viper"
)

// AppConfig holds the configuration for the application.
// Tags used:
// - mapstructure: used by viper to unmarshal
// - default: default value to set if missing
// - required: if "true", error if missing
type AppConfig struct {
	// Environment specifies the runtime environment (e.g., development, production).
	Environment string `mapstructure:"APP_ENV" default:"development"`
	// LogLevel defines the logging verbosity (e.g., debug, info, error).
	LogLevel string `mapstructure:"LOG_LEVEL" default:"info"`
	// ServerPort is the port where the server will listen.
	ServerPort int `mapstructure:"SERVER_PORT" default:"8080"`

	// Redis holds the Redis connection configuration.
	Redis RedisConfig `mapstructure:",squash"`

	// Webhook holds carrier webhook verification settings.
	Webhook WebhookConfig `mapstructure:",squash"`

	// Carriers holds outbound carrier-call settings.
	Carriers CarrierConfig `mapstructure:",squash"`

	// Routing holds the external road-routing provider settings.
	Routing RoutingConfig `mapstructure:",squash"`

	// Worker holds job worker-pool settings.
	Worker WorkerConfig `mapstructure:",squash"`

	// Scheduler holds cron scheduler settings.
	Scheduler SchedulerConfig `mapstructure:",squash"`

	// Guards holds lock and idempotency cache settings.
	Guards GuardConfig `mapstructure:",squash"`

	// Proxy holds optional outbound proxy settings for carrier calls.
	Proxy ProxyConfig `mapstructure:",squash"`
}

// RedisConfig holds Redis connection details.
type RedisConfig struct {
	// URL is the Redis connection string, e.g. redis://localhost:6379/0.
	URL string `mapstructure:"REDIS_URL" default:"redis://localhost:6379/0"`
}

// WebhookConfig holds carrier webhook signature settings.
type WebhookConfig struct {
	// Secret is the shared HMAC key carriers sign callbacks with.
	Secret string `mapstructure:"WEBHOOK_SECRET" required:"true"`
	// ToleranceSeconds is the accepted clock skew for signed timestamps.
	ToleranceSeconds int `mapstructure:"WEBHOOK_TOLERANCE_SECONDS" default:"300"`
}

// CarrierConfig holds settings for outbound quote solicitation.
type CarrierConfig struct {
	// QuoteTimeoutSeconds bounds each individual carrier quote call.
	QuoteTimeoutSeconds int `mapstructure:"CARRIER_TIMEOUT_SECONDS" default:"10"`
	// MinQuotes is the threshold below which one extra fan-out pass runs.
	MinQuotes int `mapstructure:"CARRIER_MIN_QUOTES" default:"2"`
}

// RoutingConfig holds the road-routing provider settings.
type RoutingConfig struct {
	// URL is the routing service base URL. Empty means the haversine
	// estimator is used directly.
	URL string `mapstructure:"ROUTING_URL"`
	// TimeoutSeconds bounds each routing call.
	TimeoutSeconds int `mapstructure:"ROUTING_TIMEOUT_SECONDS" default:"5"`
}

// WorkerConfig holds job worker-pool settings.
type WorkerConfig struct {
	// Concurrency is the number of jobs that may run at once.
	Concurrency int `mapstructure:"WORKER_CONCURRENCY" default:"5"`
	// PollSeconds is the interval between pending-job polls.
	PollSeconds int `mapstructure:"WORKER_POLL_SECONDS" default:"5"`
	// ShutdownTimeoutSeconds bounds the graceful-stop wait for active jobs.
	ShutdownTimeoutSeconds int `mapstructure:"WORKER_SHUTDOWN_TIMEOUT_SECONDS" default:"30"`
}

// SchedulerConfig holds cron scheduler settings.
type SchedulerConfig struct {
	// PollSeconds is the interval between due-schedule checks.
	PollSeconds int `mapstructure:"SCHEDULER_POLL_SECONDS" default:"60"`
}

// GuardConfig holds concurrency-guard settings.
type GuardConfig struct {
	// LockMaxAgeMinutes is the stale-lock sweep threshold.
	LockMaxAgeMinutes int `mapstructure:"LOCK_MAX_AGE_MINUTES" default:"30"`
	// IdempotencyTTLHours is the cached-response validity window.
	IdempotencyTTLHours int `mapstructure:"IDEMPOTENCY_TTL_HOURS" default:"1"`
}

// ProxyConfig holds optional outbound proxy details for carrier calls.
type ProxyConfig struct {
	// Enabled toggles proxying of outbound HTTP calls.
	Enabled bool `mapstructure:"PROXY_ENABLED" default:"false"`
	// Hostname is the proxy host.
	Hostname string `mapstructure:"PROXY_HOSTNAME"`
	// Port is the proxy port.
	Port int `mapstructure:"PROXY_PORT"`
	// Username is the proxy auth user.
	Username string `mapstructure:"PROXY_USERNAME"`
	// Password is the proxy auth password.
	Password string `mapstructure:"PROXY_PASSWORD"`
}

// Load loads configuration from .env files and environment variables.
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	v.AutomaticEnv()

	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config AppConfig

	if err := processTags(v, &config); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := validateRequired(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// processTags iterates over the struct fields and sets default values in Viper.
func processTags(v *viper.Viper, config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := processTags(v, val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		key := field.Tag.Get("mapstructure")
		defaultValue := field.Tag.Get("default")

		if key != "" {
			v.BindEnv(key)
		}

		if key != "" && defaultValue != "" {
			v.SetDefault(key, defaultValue)
		}
	}
	return nil
}

// validateRequired checks if fields marked as required have non-zero values.
func validateRequired(config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := validateRequired(val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		required := field.Tag.Get("required")
		if required == "true" {
			value := val.Field(i)
			if isZero(value) {
				key := field.Tag.Get("mapstructure")
				return fmt.Errorf("missing required configuration: %s", key)
			}
		}
	}
	return nil
}

// isZero checks if a reflect.Value is the zero value for its type.
func isZero(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return v.String() == ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}

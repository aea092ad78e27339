package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultBaseURL is the public project view page; the project ID is appended as the last path segment.
const DefaultBaseURL = "https://maharerait.maharashtra.gov.in/public/project/view/"

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `json:"server"`
	Redis    RedisConfig    `json:"redis"`
	Harvest  HarvestConfig  `json:"harvest"`
	Browser  BrowserConfig  `json:"browser"`
	Captcha  CaptchaConfig  `json:"captcha"`
	Log      LogConfig      `json:"log"`
	Security SecurityConfig `json:"security"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         int    `json:"port" validate:"min=1,max=65535"`
	Environment  string `json:"environment" validate:"oneof=development staging production test"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	IdleTimeout  int    `json:"idle_timeout"`
	// Persist records scraped through the API into the same tables as the harvester.
	Persist  bool          `json:"persist"`
	CacheTTL time.Duration `json:"cache_ttl"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled      bool          `json:"enabled"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// HarvestConfig holds the ID range, pool sizing and output tables
type HarvestConfig struct {
	BaseURL          string        `json:"base_url" validate:"required,url"`
	StartID          int           `json:"start_id" validate:"min=1"`
	EndID            int           `json:"end_id" validate:"min=1,gtefield=StartID"`
	Workers          int           `json:"workers" validate:"min=1,max=64"`
	RetryWorkers     int           `json:"retry_workers" validate:"min=1,max=64"`
	RetryDelay       time.Duration `json:"retry_delay" validate:"min=0"`
	MaxRetryAttempts int           `json:"max_retry_attempts" validate:"min=0"`
	RecordsFile      string        `json:"records_file" validate:"required"`
	FailedFile       string        `json:"failed_file" validate:"required"`
	SkipExisting     bool          `json:"skip_existing"`
	IncludeFailed    bool          `json:"include_failed"`
	MetricsAddr      string        `json:"metrics_addr"`
}

// BrowserConfig holds browser automation configuration
type BrowserConfig struct {
	Headless           bool          `json:"headless"`
	ExecPath           string        `json:"exec_path"`
	BlockResources     bool          `json:"block_resources"`
	NavigationTimeout  time.Duration `json:"navigation_timeout" validate:"gt=0"`
	NetworkIdleTimeout time.Duration `json:"network_idle_timeout" validate:"gt=0"`
	SettleDelay        time.Duration `json:"settle_delay" validate:"min=0"`
	ContainerTimeout   time.Duration `json:"container_timeout" validate:"gt=0"`
	NavigationRPS      float64       `json:"navigation_rps" validate:"min=0"`
	PoolSize           int           `json:"pool_size" validate:"min=1"`
}

// CaptchaConfig holds CAPTCHA solving configuration
type CaptchaConfig struct {
	TesseractPath string        `json:"tesseract_path" validate:"required"`
	Language      string        `json:"language"`
	TokenLength   int           `json:"token_length" validate:"min=1"`
	PageSegModes  []int         `json:"page_seg_modes" validate:"min=2,dive,min=0,max=13"`
	MaxAttempts   int           `json:"max_attempts" validate:"min=1"`
	RetryDelay    time.Duration `json:"retry_delay" validate:"min=0"`
	SubmitTimeout time.Duration `json:"submit_timeout" validate:"gt=0"`
	DebugDir      string        `json:"debug_dir"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format" validate:"oneof=json text"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `json:"rate_limit"`
	CORS      CORSConfig      `json:"cors"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" validate:"min=1"`
	BurstSize         int           `json:"burst_size" validate:"min=1"`
	CleanupInterval   time.Duration `json:"cleanup_interval" validate:"gt=0"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("PORT", 8080),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 30),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 180),
			IdleTimeout:  getEnvAsInt("IDLE_TIMEOUT", 60),
			Persist:      getEnvAsBool("API_PERSIST", true),
			CacheTTL:     getEnvAsDuration("CACHE_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			Enabled:      getEnvAsBool("REDIS_ENABLED", true),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Harvest: HarvestConfig{
			BaseURL:          getEnv("RERA_BASE_URL", DefaultBaseURL),
			StartID:          getEnvAsInt("START_ID", 1),
			EndID:            getEnvAsInt("END_ID", 1),
			Workers:          getEnvAsInt("WORKERS", 4),
			RetryWorkers:     getEnvAsInt("RETRY_WORKERS", 2),
			RetryDelay:       getEnvAsDuration("RETRY_DELAY", time.Second),
			MaxRetryAttempts: getEnvAsInt("MAX_RETRY_ATTEMPTS", 0),
			RecordsFile:      getEnv("RECORDS_FILE", "maharera_projects.csv"),
			FailedFile:       getEnv("FAILED_FILE", "failed_projects.csv"),
			SkipExisting:     getEnvAsBool("SKIP_EXISTING", true),
			IncludeFailed:    getEnvAsBool("INCLUDE_FAILED", false),
			MetricsAddr:      getEnv("METRICS_ADDR", ""),
		},
		Browser: BrowserConfig{
			Headless:           getEnvAsBool("BROWSER_HEADLESS", true),
			ExecPath:           getEnv("BROWSER_EXEC_PATH", ""),
			BlockResources:     getEnvAsBool("BROWSER_BLOCK_RESOURCES", true),
			NavigationTimeout:  getEnvAsDuration("BROWSER_NAVIGATION_TIMEOUT", 60*time.Second),
			NetworkIdleTimeout: getEnvAsDuration("BROWSER_NETWORK_IDLE_TIMEOUT", 30*time.Second),
			SettleDelay:        getEnvAsDuration("BROWSER_SETTLE_DELAY", 2*time.Second),
			ContainerTimeout:   getEnvAsDuration("BROWSER_CONTAINER_TIMEOUT", 10*time.Second),
			NavigationRPS:      getEnvAsFloat("BROWSER_NAVIGATION_RPS", 0),
			PoolSize:           getEnvAsInt("BROWSER_POOL_SIZE", 2),
		},
		Captcha: CaptchaConfig{
			TesseractPath: getEnv("TESSERACT_PATH", "tesseract"),
			Language:      getEnv("TESSERACT_LANG", "eng"),
			TokenLength:   getEnvAsInt("CAPTCHA_TOKEN_LENGTH", 6),
			PageSegModes:  getEnvAsIntSlice("CAPTCHA_PSM", []int{7, 8}),
			MaxAttempts:   getEnvAsInt("CAPTCHA_MAX_ATTEMPTS", 3),
			RetryDelay:    getEnvAsDuration("CAPTCHA_RETRY_DELAY", time.Second),
			SubmitTimeout: getEnvAsDuration("CAPTCHA_SUBMIT_TIMEOUT", 10*time.Second),
			DebugDir:      getEnv("CAPTCHA_DEBUG_DIR", ""),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 28),
			Compress:   getEnvAsBool("LOG_COMPRESS", true),
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 30),
				BurstSize:         getEnvAsInt("RATE_LIMIT_BURST", 5),
				CleanupInterval:   getEnvAsDuration("RATE_LIMIT_CLEANUP", time.Minute),
			},
			CORS: CORSConfig{
				AllowedOrigins:   getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
				AllowedMethods:   []string{"GET", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: false,
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks struct constraints. Call it again after flags override env values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ProjectURL builds the source URL for a project ID
func (h HarvestConfig) ProjectURL(id int) string {
	return h.BaseURL + strconv.Itoa(id)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("1500ms") or plain seconds ("30").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsIntSlice(key string, defaultValue []int) []int {
	parts := getEnvAsSlice(key, nil)
	if len(parts) == 0 {
		return defaultValue
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return defaultValue
		}
		out = append(out, n)
	}
	return out
}

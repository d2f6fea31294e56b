package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	BackendAPI    = "api"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Association API
	DataBackend    string
	APIBaseURL     string
	APIToken       string
	APITokenFile   string
	APITimeout     time.Duration
	MemorySeedFile string

	// Receipt numbering
	SequenceBackend  string
	RedisAddr        string
	RedisSequenceKey string

	// Receipt journal; empty disables it
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets ledger
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
	GoogleOAuthClientJSON    string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenJSON     string
	GoogleOAuthTokenFile     string

	// Rendering
	ReceiptArchiveDir  string
	ReceiptFontFile    string
	AssociationName    string
	AssociationAddress string
	CurrencyLabel      string

	// Dashboard
	PeriodCacheTTL time.Duration

	// Worker
	SyncBatchSize int
	SyncInterval  time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend:    getEnv("DATA_BACKEND", BackendMemory),
		APIBaseURL:     getEnv("API_BASE_URL", ""),
		APIToken:       getEnv("API_TOKEN", ""),
		APITokenFile:   getEnv("API_TOKEN_FILE", ""),
		APITimeout:     getEnvDuration("API_TIMEOUT", 15*time.Second),
		MemorySeedFile: getEnv("MEMORY_SEED_FILE", ""),

		SequenceBackend:  getEnv("SEQUENCE_BACKEND", BackendAPI),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisSequenceKey: getEnv("REDIS_SEQUENCE_KEY", "talahum:receipt_seq"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "talahum"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "receipt_issued"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Receipts"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleOAuthClientJSON:    getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenJSON:     getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),

		ReceiptArchiveDir:  getEnv("RECEIPT_ARCHIVE_DIR", "./data/receipts"),
		ReceiptFontFile:    getEnv("RECEIPT_FONT_FILE", ""),
		AssociationName:    getEnv("ASSOCIATION_NAME", ""),
		AssociationAddress: getEnv("ASSOCIATION_ADDRESS", ""),
		CurrencyLabel:      getEnv("CURRENCY_LABEL", ""),

		PeriodCacheTTL: getEnvDuration("PERIOD_CACHE_TTL", 30*time.Second),

		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 30*time.Second),
	}

	return cfg
}

// JournalEnabled reports whether receipts are journaled locally.
func (c *Config) JournalEnabled() bool { return c.SQLiteDBPath != "" }

// LedgerEnabled reports whether archived receipts are mirrored to Google Sheets.
func (c *Config) LedgerEnabled() bool { return c.GoogleSpreadsheetID != "" }

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}

	// Validate data backend
	switch c.DataBackend {
	case BackendAPI:
		if c.APIBaseURL == "" {
			errors = append(errors, "API base URL is required when using api backend")
		} else if u, err := url.Parse(c.APIBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid API base URL '%s': %v", c.APIBaseURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid API base URL scheme '%s': must be 'http' or 'https'", u.Scheme))
		}
		if c.APITimeout <= 0 {
			errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be positive", c.APITimeout))
		}
	case BackendMemory:
		if c.MemorySeedFile != "" {
			if _, err := os.Stat(c.MemorySeedFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("memory seed file does not exist: %s", c.MemorySeedFile))
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [%s %s]", c.DataBackend, BackendAPI, BackendMemory))
	}

	switch c.SequenceBackend {
	case BackendAPI:
	case BackendRedis:
		if c.RedisAddr == "" {
			errors = append(errors, "Redis address is required when using redis sequence backend")
		}
		if c.RedisSequenceKey == "" {
			errors = append(errors, "Redis sequence key cannot be empty when using redis sequence backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid sequence backend '%s': must be one of [%s %s]", c.SequenceBackend, BackendAPI, BackendRedis))
	}

	// Check if the journal directory exists or can be created
	if c.SQLiteDBPath != "" {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path is required when AMQP URL is provided")
		}
	}

	// Validate Google Sheets configuration if a ledger is configured
	if c.GoogleSpreadsheetID != "" {
		oauth := c.GoogleOAuthTokenJSON != "" || c.GoogleOAuthTokenFile != ""
		if oauth && c.GoogleOAuthClientJSON == "" && c.GoogleOAuthClientFile == "" {
			errors = append(errors, "GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE is required with an OAuth token")
		}
		if !oauth && c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for the sheets ledger")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.ReceiptFontFile != "" {
		if _, err := os.Stat(c.ReceiptFontFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("receipt font file does not exist: %s", c.ReceiptFontFile))
		}
	}

	if c.PeriodCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid period cache TTL %v: must not be negative", c.PeriodCacheTTL))
	}

	// Validate worker configuration
	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker adds the checks the receipt worker needs on top of Validate.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	var errors []string
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path is required by the receipt worker")
	}
	if c.ReceiptArchiveDir == "" {
		errors = append(errors, "receipt archive directory is required by the receipt worker")
	}
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

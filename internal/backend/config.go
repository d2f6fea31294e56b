package backend

import (
	"fmt"

	"talahum/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		APIBaseURL:   appConfig.APIBaseURL,
		APIToken:     appConfig.APIToken,
		APITokenFile: appConfig.APITokenFile,
		APITimeout:   appConfig.APITimeout,

		SeedFile: appConfig.MemorySeedFile,

		Sequence:         SequenceType(appConfig.SequenceBackend),
		RedisAddr:        appConfig.RedisAddr,
		RedisSequenceKey: appConfig.RedisSequenceKey,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case APIBackend:
		if c.APIBaseURL == "" {
			return fmt.Errorf("API base URL is required for api backend")
		}
	case MemoryBackend:
		// An empty seed file loads the embedded demo data.
	}

	if c.Sequence != "" && !c.Sequence.IsValid() {
		return fmt.Errorf("invalid sequence backend: %s", c.Sequence)
	}
	if c.Sequence == RedisSequence && c.RedisAddr == "" {
		return fmt.Errorf("Redis address is required for redis sequence")
	}
	if c.AMQPURL != "" && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required when AMQP is enabled")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{APIBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}

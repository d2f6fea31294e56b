package backend

import (
	"context"
	"time"

	"talahum/internal/ports"
	"talahum/internal/storage"
)

// Backend represents a unified backend interface that provides all necessary operations
type Backend interface {
	ports.SubscriberSource
	ports.ReceiptSequencer
	ports.PaymentWriter
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	// Journal is nil when SQLITE_DB_PATH is empty.
	Journal *storage.SQLiteRepository
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// API specific
	APIBaseURL   string
	APIToken     string
	APITokenFile string
	APITimeout   time.Duration

	// Memory backend specific
	SeedFile string

	// Receipt numbering
	Sequence         SequenceType
	RedisAddr        string
	RedisSequenceKey string

	// Journal and events, both optional
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	APIBackend    BackendType = "api"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case APIBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// SequenceType selects where receipt numbers come from.
type SequenceType string

const (
	// BackendSequence reads numbers from the data backend itself.
	BackendSequence SequenceType = "api"
	RedisSequence   SequenceType = "redis"
)

func (st SequenceType) IsValid() bool {
	return st == BackendSequence || st == RedisSequence
}

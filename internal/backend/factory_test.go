package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"talahum/internal/config"
	"talahum/internal/core"
	"talahum/internal/services"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"api", Config{Type: APIBackend, APIBaseURL: "http://localhost:3000/api"}, false},
		{"api without url", Config{Type: APIBackend}, true},
		{"unknown type", Config{Type: "sheets"}, true},
		{"unknown sequence", Config{Type: MemoryBackend, Sequence: "etcd"}, true},
		{"redis without addr", Config{Type: MemoryBackend, Sequence: RedisSequence}, true},
		{"amqp without journal", Config{Type: MemoryBackend, AMQPURL: "amqp://localhost/"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}

	app := &config.Config{
		DataBackend:     "api",
		APIBaseURL:      "https://example.org/api",
		APITimeout:      5 * time.Second,
		SequenceBackend: "redis",
		RedisAddr:       "localhost:6379",
		SQLiteDBPath:    "/tmp/x.db",
	}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != APIBackend || cfg.Sequence != RedisSequence || cfg.APITimeout != 5*time.Second {
		t.Errorf("unexpected config: %+v", cfg)
	}

	app.DataBackend = "sqlite"
	if _, err := FromAppConfig(app); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer res.Cleanup()

	if res.Journal != nil {
		t.Error("journal should be disabled without a database path")
	}
	items, err := res.Backend.ListSubscribers(context.Background(), core.Period{Month: 1, Year: 2024})
	if err != nil {
		t.Fatalf("ListSubscribers() error = %v", err)
	}
	if len(items) == 0 {
		t.Error("embedded seed should contain subscribers")
	}
}

func TestCreateBackendWithJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "talahum.db")
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:         MemoryBackend,
		SQLiteDBPath: dbPath,
	})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer res.Cleanup()

	if res.Journal == nil {
		t.Fatal("journal should be enabled")
	}
	b, ok := res.Backend.(composite)
	if !ok {
		t.Fatalf("unexpected backend type %T", res.Backend)
	}
	if _, ok := b.PaymentWriter.(*services.PaymentService); !ok {
		t.Errorf("payment writer should be journaled, got %T", b.PaymentWriter)
	}
}

func TestCreateAPIBackend(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:         APIBackend,
		APIBaseURL:   "http://localhost:3000/api",
		APITokenFile: filepath.Join(t.TempDir(), "token"),
	})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	if err := res.Cleanup(); err != nil {
		t.Errorf("Cleanup() error = %v", err)
	}

	if _, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:       APIBackend,
		APIBaseURL: "localhost:3000",
	}); err == nil {
		t.Error("expected error for a base URL without scheme")
	}
}

package extension

import (
	"testing"
	"time"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{})
	if cfg.MaxDepth != 64 {
		t.Fatalf("MaxDepth = %d, want 64", cfg.MaxDepth)
	}
	if cfg.LockTTL != 30*time.Second {
		t.Fatalf("LockTTL = %s, want 30s", cfg.LockTTL)
	}

	cfg = mergeWithDefaults(Config{MaxDepth: 8})
	if cfg.MaxDepth != 8 {
		t.Fatalf("MaxDepth = %d, want 8", cfg.MaxDepth)
	}
}

func TestMergeConfigurations(t *testing.T) {
	tests := []struct {
		name         string
		file, option Config
		want         Config
	}{
		{
			name:   "file wins",
			file:   Config{MaxDepth: 10, RedisAddr: "redis:6379"},
			option: Config{MaxDepth: 20, RedisAddr: "localhost:6379"},
			want:   Config{MaxDepth: 10, RedisAddr: "redis:6379", LockTTL: 30 * time.Second},
		},
		{
			name:   "options fill gaps",
			file:   Config{},
			option: Config{MaxDepth: 20, RedisAddr: "localhost:6379", RedisDB: 2, LockTTL: time.Minute, DisableMigrate: true},
			want:   Config{MaxDepth: 20, RedisAddr: "localhost:6379", RedisDB: 2, LockTTL: time.Minute, DisableMigrate: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeConfigurations(tt.file, tt.option)
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBuildEngineOpts_RedisLock(t *testing.T) {
	e := New(WithRedisLock("localhost:6379", "", 0), WithMaxDepth(5))
	e.config = mergeWithDefaults(e.config)
	opts := e.buildEngineOpts()
	if len(opts) != 2 {
		t.Fatalf("len(opts) = %d, want 2", len(opts))
	}
	if e.locker == nil {
		t.Fatal("expected a redis locker")
	}
}

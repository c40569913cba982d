package main

import (
	"fmt"

	"github.com/atelier-run/atelier/internal/config"
	"github.com/atelier-run/atelier/pkg/adapters/file"
	"github.com/atelier-run/atelier/pkg/adapters/memory"
	"github.com/atelier-run/atelier/pkg/adapters/redis"
	"github.com/atelier-run/atelier/pkg/ports"
)

// newStore builds the configured document store backend.
func newStore(cfg config.StorageConfig) (ports.DocumentStore, error) {
	switch cfg.Backend {
	case "file":
		return file.New(cfg.Path), nil
	case "redis":
		opts := []redis.Option{redis.WithPrefix(cfg.RedisPrefix)}
		if cfg.RedisTTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.RedisTTL))
		}
		return redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...), nil
	case "memory":
		return memory.NewStore(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

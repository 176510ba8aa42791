package jobstore

import (
	"context"
	"fmt"

	"github.com/mohammed-shakir/mfp-encoder/internal/core/config"
)

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.JobStoreCfg) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(cfg.LRUSize, cfg.TTL), nil
	case "redis":
		s, err := NewRedis(ctx, cfg.RedisAddr, cfg.KeyPrefix, cfg.TTL,
			WithReadTimeout(cfg.OpTimeout))
		if err != nil {
			return nil, fmt.Errorf("open redis job store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown job store driver %q", cfg.Driver)
	}
}

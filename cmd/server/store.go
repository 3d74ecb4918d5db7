package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"truce.ai/internal/persistence/docstore"
)

func openStore(ctx context.Context, ecfg envConfig, dataDir string) (docstore.Store, error) {
	switch strings.ToLower(strings.TrimSpace(ecfg.Store)) {
	case "", "sqlite":
		s, err := docstore.OpenSQLite(filepath.Join(dataDir, "truce.sqlite"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		r, err := docstore.OpenRedis(ctx, docstore.RedisConfig{
			Addr:      ecfg.RedisAddr,
			Password:  ecfg.RedisPassword,
			DB:        ecfg.RedisDB,
			KeyPrefix: ecfg.RedisPrefix,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	case "file":
		f, err := docstore.NewFile(filepath.Join(dataDir, "docs"))
		if err != nil {
			return nil, err
		}
		return f, nil
	case "memory":
		return docstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", ecfg.Store)
	}
}

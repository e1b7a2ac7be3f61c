package storage

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// RegisterBuiltins adds every backend type shipped with this module.
func RegisterBuiltins(r *Registry) error {
	for name, factory := range map[string]Factory{
		"memcached": newMemcachedBackend,
		"memory":    newMemoryBackend,
		"disk":      newDiskBackend,
		"null":      newNullBackend,
		"union":     newUnionBackend,
		"per_style": newPerStyleBackend,
	} {
		if err := r.Register(name, factory); err != nil {
			return err
		}
	}
	return nil
}

func newMemcachedBackend(cfg Config, deps Deps) (Backend, error) {
	expire, err := cfg.IntValue("expire", 0)
	if err != nil {
		return nil, err
	}
	store, err := NewMemcachedStore(cfg.StringValue("options", "--SERVER=localhost"), expire, deps.Logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newMemoryBackend(cfg Config, deps Deps) (Backend, error) {
	expire, err := cfg.IntValue("expire", 0)
	if err != nil {
		return nil, err
	}
	maxTiles, err := cfg.IntValue("max_tiles", 100000)
	if err != nil {
		return nil, err
	}
	deps.Logger.Info("Using memory storage", zap.Int("max_tiles", maxTiles), zap.Int("expire_minutes", expire))
	return NewMetatileStore(NewMemoryClient(maxTiles), expire, deps.Logger), nil
}

func newDiskBackend(cfg Config, deps Deps) (Backend, error) {
	root := cfg.StringValue("root", "")
	if root == "" {
		return nil, errors.New("disk storage requires a root directory")
	}
	disk, err := NewDiskStorage(root, deps.Logger)
	if err != nil {
		return nil, err
	}
	return disk, nil
}

func newNullBackend(_ Config, deps Deps) (Backend, error) {
	deps.Logger.Info("Storage disabled")
	return NewNullStorage(), nil
}

// newUnionBackend reads an ordered "members" list. "fast" and "slow" blocks
// are shorthand for a two-member list.
func newUnionBackend(cfg Config, deps Deps) (Backend, error) {
	blocks, err := cfg.List("members")
	if err != nil {
		return nil, err
	}

	if cfg["fast"] != nil || cfg["slow"] != nil {
		if len(blocks) > 0 {
			return nil, errors.New("union storage takes members or fast/slow, not both")
		}
		fastCfg, ok := cfg.Sub("fast")
		if !ok {
			return nil, errors.New("union storage requires a fast block")
		}
		slowCfg, ok := cfg.Sub("slow")
		if !ok {
			return nil, errors.New("union storage requires a slow block")
		}
		blocks = []Config{fastCfg, slowCfg}
	}

	members := make([]Backend, 0, len(blocks))
	for i, block := range blocks {
		b, err := deps.Registry.Create(block, deps)
		if err != nil {
			for _, m := range members {
				m.Close()
			}
			return nil, fmt.Errorf("union member %d: %w", i, err)
		}
		members = append(members, b)
	}
	if len(members) == 0 {
		deps.Logger.Warn("Union storage has no members")
	}
	return NewUnionStorage(members...), nil
}

func newPerStyleBackend(cfg Config, deps Deps) (Backend, error) {
	blocks, err := cfg.Subs("styles")
	if err != nil {
		return nil, err
	}

	styles := make(map[string]Backend, len(blocks))
	closeAll := func() {
		for _, b := range styles {
			b.Close()
		}
	}
	for style, block := range blocks {
		b, err := deps.Registry.Create(block, deps)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("style %s: %w", style, err)
		}
		styles[style] = b
	}

	var fallback Backend
	if defCfg, ok := cfg.Sub("default"); ok {
		fallback, err = deps.Registry.Create(defCfg, deps)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("default: %w", err)
		}
	}
	return NewPerStyleStorage(styles, fallback), nil
}

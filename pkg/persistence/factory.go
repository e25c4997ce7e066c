package persistence

import "fmt"

// BackendType selects which concrete Backend CreatePersistence builds
// (spec.md §6's createPersistence factory).
type BackendType string

const (
	TypeAuto      BackendType = "auto"
	TypeDurable   BackendType = "durable"
	TypeEphemeral BackendType = "ephemeral"
	TypeIndexed   BackendType = "indexed"
	TypeMemory    BackendType = "memory"
)

// defaultAutoOrder is the fallback order TypeAuto builds when
// FallbackOrder is empty: durable storage first, an indexed store as a
// second durable option, memory as the last resort that always succeeds.
var defaultAutoOrder = []BackendType{TypeDurable, TypeIndexed, TypeMemory}

// PersistenceConfig mirrors spec.md §6's createPersistence parameters.
type PersistenceConfig struct {
	Type BackendType
	// Prefix namespaces persisted keys. Empty uses DefaultKeyPrefix.
	Prefix string
	// MaxSize bounds total stored bytes (UTF-16-proxy accounting). 0
	// disables the bound.
	MaxSize int
	// DBName is the on-disk directory for the durable (Badger) backend.
	// Empty runs it fully in memory.
	DBName string
	// StoreName is the on-disk file path for the indexed (bbolt)
	// backend. bbolt has no in-memory mode: an empty StoreName makes the
	// indexed backend fail to open.
	StoreName string
	// FallbackOrder, when Type is TypeAuto, names the backend types to
	// chain in priority order. Must not itself contain TypeAuto.
	FallbackOrder []BackendType
}

// CreatePersistence builds the Backend cfg.Type names (spec.md §6's
// exposed factory). TypeAuto builds a FallbackChain over cfg.FallbackOrder
// (or defaultAutoOrder when empty). If any backend in the order fails to
// construct, CreatePersistence returns that error instead of skipping it,
// so the default order needs StoreName set for its indexed step.
func CreatePersistence(cfg PersistenceConfig) (Backend, error) {
	switch cfg.Type {
	case "", TypeAuto:
		order := cfg.FallbackOrder
		if len(order) == 0 {
			order = defaultAutoOrder
		}
		backends := make([]Backend, 0, len(order))
		for _, t := range order {
			b, err := createSingleBackend(t, cfg)
			if err != nil {
				return nil, err
			}
			backends = append(backends, b)
		}
		return NewFallbackChain(backends...)
	default:
		return createSingleBackend(cfg.Type, cfg)
	}
}

func createSingleBackend(t BackendType, cfg PersistenceConfig) (Backend, error) {
	switch t {
	case TypeDurable:
		return NewBadgerBackend(BadgerConfig{
			Dir:     cfg.DBName,
			Prefix:  cfg.Prefix,
			MaxSize: cfg.MaxSize,
		})
	case TypeEphemeral:
		return NewEphemeralBackend(cfg.MaxSize, cfg.Prefix), nil
	case TypeIndexed:
		return NewBoltBackend(BoltConfig{
			Path:    cfg.StoreName,
			Prefix:  cfg.Prefix,
			MaxSize: cfg.MaxSize,
		})
	case TypeMemory:
		return WithPrefix(NewMemoryBackend(cfg.MaxSize, nil), cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("persistence: unknown backend type %q", t)
	}
}

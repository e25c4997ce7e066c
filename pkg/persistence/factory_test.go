package persistence

import (
	"context"
	"testing"
)

func TestCreatePersistence_Memory(t *testing.T) {
	ctx := context.Background()
	b, err := CreatePersistence(PersistenceConfig{Type: TypeMemory})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer b.Close()

	if err := b.Set(ctx, "k", Record{Value: []byte("v"), Size: 1}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "k"); !ok {
		t.Fatal("expected round-trip through the memory backend")
	}
}

func TestCreatePersistence_Ephemeral(t *testing.T) {
	b, err := CreatePersistence(PersistenceConfig{Type: TypeEphemeral, Prefix: "eph:"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	_ = b.Set(ctx, "k", Record{Value: []byte("v"), Size: 1})
	if _, ok, _ := b.Get(ctx, "k"); !ok {
		t.Fatal("expected ephemeral backend to round-trip")
	}
}

func TestCreatePersistence_Durable(t *testing.T) {
	b, err := CreatePersistence(PersistenceConfig{Type: TypeDurable})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer b.Close()
	if _, ok := b.(*BadgerBackend); !ok {
		t.Fatalf("expected a *BadgerBackend, got %T", b)
	}
}

func TestCreatePersistence_Indexed(t *testing.T) {
	b, err := CreatePersistence(PersistenceConfig{Type: TypeIndexed, StoreName: t.TempDir() + "/factory.bolt"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer b.Close()
	if _, ok := b.(*BoltBackend); !ok {
		t.Fatalf("expected a *BoltBackend, got %T", b)
	}
}

func TestCreatePersistence_AutoBuildsFallbackChain(t *testing.T) {
	b, err := CreatePersistence(PersistenceConfig{
		Type:          TypeAuto,
		StoreName:     t.TempDir() + "/auto.bolt",
		FallbackOrder: []BackendType{TypeMemory, TypeIndexed},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer b.Close()

	chain, ok := b.(*FallbackChain)
	if !ok {
		t.Fatalf("expected a *FallbackChain, got %T", b)
	}

	ctx := context.Background()
	if err := chain.Set(ctx, "k", Record{Value: []byte("v"), Size: 1}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := chain.Get(ctx, "k"); !ok {
		t.Fatal("expected round-trip through the auto fallback chain")
	}
}

func TestCreatePersistence_UnknownType(t *testing.T) {
	_, err := CreatePersistence(PersistenceConfig{Type: "bogus"})
	if err == nil {
		t.Fatal("expected an error for an unknown backend type")
	}
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", url.PathEscape(t.Name()))
	store, err := Open(context.Background(), "sqlite", dsn, true, "")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertAndGetActiveConfiguration(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.UpsertConfiguration(ctx, AIConfiguration{
		TenantID:        "tenant-1",
		Provider:        "openai",
		EncryptedAPIKey: "iv:tag:ct",
		ModelID:         "gpt-4o",
		IsActive:        true,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	cfg, err := store.GetActiveConfiguration(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if cfg.Provider != "openai" || cfg.ModelID != "gpt-4o" || !cfg.IsActive {
		t.Fatalf("unexpected configuration %+v", cfg)
	}
	if cfg.EncryptedAPIKey != "iv:tag:ct" {
		t.Fatalf("unexpected encrypted key %q", cfg.EncryptedAPIKey)
	}
}

func TestActivatingProviderDeactivatesOthers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, provider := range []string{"openai", "anthropic"} {
		err := store.UpsertConfiguration(ctx, AIConfiguration{
			TenantID:        "tenant-1",
			Provider:        provider,
			EncryptedAPIKey: "iv:tag:ct",
			ModelID:         "some-model",
			IsActive:        true,
		})
		if err != nil {
			t.Fatalf("upsert %s: %v", provider, err)
		}
	}

	cfg, err := store.GetActiveConfiguration(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if cfg.Provider != "anthropic" {
		t.Fatalf("expected anthropic active, got %q", cfg.Provider)
	}

	openaiCfg, err := store.GetConfigurationByProvider(ctx, "tenant-1", "openai")
	if err != nil {
		t.Fatalf("get openai: %v", err)
	}
	if openaiCfg.IsActive {
		t.Fatalf("expected openai to be deactivated")
	}
}

func TestUpsertReplacesExistingBinding(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := AIConfiguration{
		TenantID:        "tenant-1",
		Provider:        "openrouter",
		EncryptedAPIKey: "old-blob",
		ModelID:         "openrouter/gpt-4o",
		IsActive:        true,
	}
	if err := store.UpsertConfiguration(ctx, base); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	base.EncryptedAPIKey = "new-blob"
	base.ModelID = "openrouter/claude-sonnet-4"
	if err := store.UpsertConfiguration(ctx, base); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	configs, err := store.ListConfigurations(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(configs) != 1 {
		t.Fatalf("expected 1 configuration, got %d", len(configs))
	}
	if configs[0].EncryptedAPIKey != "new-blob" || configs[0].ModelID != "openrouter/claude-sonnet-4" {
		t.Fatalf("expected replaced binding, got %+v", configs[0])
	}
}

func TestGetActiveConfigurationNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetActiveConfiguration(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.UpsertConfiguration(ctx, AIConfiguration{
		TenantID:        "tenant-a",
		Provider:        "openai",
		EncryptedAPIKey: "blob-a",
		ModelID:         "gpt-4o",
		IsActive:        true,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, err := store.GetActiveConfiguration(ctx, "tenant-b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other tenant, got %v", err)
	}
}

func TestDeleteConfiguration(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.UpsertConfiguration(ctx, AIConfiguration{
		TenantID:        "tenant-1",
		Provider:        "openai",
		EncryptedAPIKey: "blob",
		ModelID:         "gpt-4o",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := store.DeleteConfiguration(ctx, "tenant-1", "openai"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteConfiguration(ctx, "tenant-1", "openai"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestUpdateEncryptedKey(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.UpsertConfiguration(ctx, AIConfiguration{
		TenantID:        "tenant-1",
		Provider:        "anthropic",
		EncryptedAPIKey: "blob-v1",
		ModelID:         "claude-sonnet-4",
		IsActive:        true,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := store.UpdateEncryptedKey(ctx, "tenant-1", "anthropic", "blob-v2"); err != nil {
		t.Fatalf("update key: %v", err)
	}
	cfg, err := store.GetConfigurationByProvider(ctx, "tenant-1", "anthropic")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cfg.EncryptedAPIKey != "blob-v2" {
		t.Fatalf("expected rewritten blob, got %q", cfg.EncryptedAPIKey)
	}

	if err := store.UpdateEncryptedKey(ctx, "tenant-1", "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing provider, got %v", err)
	}
}

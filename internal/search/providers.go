// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/metasearch/internal/connector"
	"github.com/pdiddy/metasearch/pkg/types"
)

// ProviderFile is the on-disk list of provider definitions.
type ProviderFile struct {
	Providers []types.Provider `yaml:"providers"`
}

// AddProvider validates p and stores it for owner. A provider with an
// existing ID is replaced only by its owner.
func (e *Engine) AddProvider(ctx context.Context, owner string, p types.Provider) (*types.Provider, error) {
	if err := connector.Validate(p); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p.Owner = owner
	p.CreatedAt = now
	if p.ID == "" {
		p.ID = uuid.NewString()
	} else {
		existing, err := e.store.GetProvider(ctx, p.ID)
		switch {
		case err == nil:
			if existing.Owner != owner {
				return nil, fmt.Errorf("provider %s: %w", p.ID, ErrForbidden)
			}
			p.CreatedAt = existing.CreatedAt
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}
	p.UpdatedAt = now
	if err := e.store.SaveProvider(ctx, &p); err != nil {
		return nil, err
	}
	e.logger.Info("provider saved", "provider_id", p.ID, "name", p.Name, "owner", owner)
	return &p, nil
}

// Providers lists the providers visible to viewer: their own and shared
// ones. Credentials of providers viewer does not own are removed.
func (e *Engine) Providers(ctx context.Context, viewer string) ([]types.Provider, error) {
	list, err := e.store.ListProviders(ctx, viewer)
	if err != nil {
		return nil, err
	}
	out := make([]types.Provider, len(list))
	for i, p := range list {
		out[i] = p.Redacted(viewer)
	}
	return out, nil
}

// Provider returns one provider visible to viewer.
func (e *Engine) Provider(ctx context.Context, id, viewer string) (types.Provider, error) {
	p, err := e.store.GetProvider(ctx, id)
	if err != nil {
		return types.Provider{}, err
	}
	if p.Owner != viewer && !p.Shared {
		return types.Provider{}, fmt.Errorf("provider %s: %w", id, ErrForbidden)
	}
	return p.Redacted(viewer), nil
}

// RemoveProvider deletes a provider owned by owner.
func (e *Engine) RemoveProvider(ctx context.Context, id, owner string) error {
	p, err := e.store.GetProvider(ctx, id)
	if err != nil {
		return err
	}
	if p.Owner != owner {
		return fmt.Errorf("provider %s: %w", id, ErrForbidden)
	}
	return e.store.DeleteProvider(ctx, id)
}

// ImportProviders loads a provider file and adds every entry for owner.
// Entries are validated before any is stored.
func (e *Engine) ImportProviders(ctx context.Context, owner, path string) ([]*types.Provider, error) {
	providers, err := ReadProviderFile(path)
	if err != nil {
		return nil, err
	}
	for _, p := range providers {
		if err := connector.Validate(p); err != nil {
			return nil, fmt.Errorf("provider %q: %w", p.Name, err)
		}
	}
	saved := make([]*types.Provider, 0, len(providers))
	for _, p := range providers {
		sp, err := e.AddProvider(ctx, owner, p)
		if err != nil {
			return saved, fmt.Errorf("provider %q: %w", p.Name, err)
		}
		saved = append(saved, sp)
	}
	return saved, nil
}

// ReadProviderFile parses a YAML provider file.
func ReadProviderFile(path string) ([]types.Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading provider file: %w", err)
	}
	var pf ProviderFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing provider file %s: %w", path, err)
	}
	return pf.Providers, nil
}

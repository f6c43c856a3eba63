package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recoverly/internal/reminder/domain"
)

type memoryRepo struct {
	mu        sync.RWMutex
	settings  map[string]domain.Settings
	templates map[snowflake.ID]domain.Template
}

func NewMemory() domain.Repository {
	return &memoryRepo{
		settings:  make(map[string]domain.Settings),
		templates: make(map[snowflake.ID]domain.Template),
	}
}

func (r *memoryRepo) FindSettings(ctx context.Context, tenantID string) (*domain.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	settings, ok := r.settings[tenantID]
	if !ok {
		return nil, nil
	}
	return &settings, nil
}

func (r *memoryRepo) InsertSettings(ctx context.Context, settings *domain.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.settings[settings.TenantID]; ok {
		return domain.ErrSettingsExists
	}
	r.settings[settings.TenantID] = *settings
	return nil
}

func (r *memoryRepo) UpdateSettings(ctx context.Context, settings *domain.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.settings[settings.TenantID]
	if !ok || existing.ID != settings.ID {
		return nil
	}
	r.settings[settings.TenantID] = *settings
	return nil
}

func (r *memoryRepo) ListActiveTemplates(ctx context.Context, tenantID string, typ domain.TemplateType) ([]domain.Template, error) {
	r.mu.RLock()
	out := make([]domain.Template, 0)
	for _, template := range r.templates {
		if template.TenantID != tenantID || !template.IsActive {
			continue
		}
		if typ != "" && template.Type != typ {
			continue
		}
		out = append(out, template)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memoryRepo) FindTemplate(ctx context.Context, tenantID string, id snowflake.ID) (*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	template, ok := r.templates[id]
	if !ok || template.TenantID != tenantID {
		return nil, nil
	}
	return &template, nil
}

func (r *memoryRepo) InsertTemplate(ctx context.Context, template *domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.templates[template.ID] = *template
	return nil
}

func (r *memoryRepo) DeactivateTemplate(ctx context.Context, tenantID string, id snowflake.ID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	template, ok := r.templates[id]
	if !ok || template.TenantID != tenantID || !template.IsActive {
		return false, nil
	}
	template.IsActive = false
	template.UpdatedAt = at
	r.templates[id] = template
	return true, nil
}

func (r *memoryRepo) CountTemplates(ctx context.Context, tenantID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, template := range r.templates {
		if template.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

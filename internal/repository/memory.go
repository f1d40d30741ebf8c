package repository

import (
	"context"
	"sync"
	"time"

	"itinera/internal/models"
)

type MemoryDraftRepository struct {
	mu         sync.Mutex
	drafts     map[string]memoryDraft
	rateLimits map[string]*rateLimitEntry
	ttl        time.Duration
	now        func() time.Time
}

type memoryDraft struct {
	draft     models.Draft
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryDraftRepository(ttl time.Duration) *MemoryDraftRepository {
	return &MemoryDraftRepository{
		drafts:     make(map[string]memoryDraft),
		rateLimits: make(map[string]*rateLimitEntry),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (r *MemoryDraftRepository) GetDraft(_ context.Context, id string) (*models.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.drafts[id]
	if !ok {
		return nil, nil
	}
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		delete(r.drafts, id)
		return nil, nil
	}
	d := entry.draft
	return &d, nil
}

func (r *MemoryDraftRepository) SaveDraft(_ context.Context, draft *models.Draft) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drafts[draft.ID] = memoryDraft{draft: *draft, expiresAt: r.now().Add(r.ttl)}
	return nil
}

func (r *MemoryDraftRepository) ClearDraft(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.drafts, id)
	return nil
}

func (r *MemoryDraftRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}

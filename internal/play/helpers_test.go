package play

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/narimato/narimato/internal/deck"
	"github.com/narimato/narimato/internal/storage/models"
	"github.com/narimato/narimato/internal/storage/repository"
)

// memPlayRepo is an in-memory PlayRepository with the same optimistic
// versioning contract as the SQL implementation.
type memPlayRepo struct {
	mu    sync.Mutex
	plays map[string]*models.Play
}

func newMemPlayRepo() *memPlayRepo {
	return &memPlayRepo{plays: make(map[string]*models.Play)}
}

func clonePlay(p *models.Play) *models.Play {
	raw, _ := json.Marshal(p)
	out := &models.Play{}
	_ = json.Unmarshal(raw, out)
	return out
}

func (r *memPlayRepo) Create(_ context.Context, p *models.Play) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plays[p.ID] = clonePlay(p)
	return nil
}

func (r *memPlayRepo) Get(_ context.Context, id string) (*models.Play, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plays[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clonePlay(p), nil
}

func (r *memPlayRepo) Update(_ context.Context, p *models.Play, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.plays[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	p.Version = expectedVersion + 1
	p.LastActivity = time.Now().UTC()
	r.plays[p.ID] = clonePlay(p)
	return nil
}

func (r *memPlayRepo) ListCompleted(_ context.Context, tenantID string, limit int) ([]*models.Play, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Play
	for _, p := range r.plays {
		if p.TenantID == tenantID && p.Status == models.PlayStatusCompleted && len(p.Votes) > 0 {
			out = append(out, clonePlay(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(*out[j].CompletedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memPlayRepo) ListStaleVoting(_ context.Context, cutoff time.Time) ([]*models.Play, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Play
	for _, p := range r.plays {
		if p.Status == models.PlayStatusActive && p.State == models.PlayStateVoting && p.LastActivity.Before(cutoff) {
			out = append(out, clonePlay(p))
		}
	}
	return out, nil
}

func (r *memPlayRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, p := range r.plays {
		if p.Expired(now) {
			delete(r.plays, id)
			deleted++
		}
	}
	return deleted, nil
}

// put stores a play directly, bypassing the versioning contract. Test
// setup only.
func (r *memPlayRepo) put(p *models.Play) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plays[p.ID] = clonePlay(p)
}

// memCardRepo is an in-memory CardRepository. ListActiveByHashtag
// mirrors the SQL implementation's name ordering.
type memCardRepo struct {
	mu    sync.Mutex
	cards map[string]*models.Card
}

func newMemCardRepo() *memCardRepo {
	return &memCardRepo{cards: make(map[string]*models.Card)}
}

func (r *memCardRepo) add(tenantID, id, name string, hashtags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.cards[id] = &models.Card{
		ID: id, TenantID: tenantID, Name: name, Hashtags: hashtags,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
}

func (r *memCardRepo) Create(_ context.Context, card *models.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cards[card.ID] = card
	return nil
}

func (r *memCardRepo) Update(_ context.Context, card *models.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cards[card.ID]; !ok {
		return repository.ErrNotFound
	}
	r.cards[card.ID] = card
	return nil
}

func (r *memCardRepo) Get(_ context.Context, id string) (*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *card
	return &c, nil
}

func (r *memCardRepo) GetByName(_ context.Context, tenantID, name string) (*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, card := range r.cards {
		if card.TenantID == tenantID && card.Name == name {
			c := *card
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memCardRepo) ListActiveByHashtag(_ context.Context, tenantID, tag string) ([]*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Card
	for _, card := range r.cards {
		if card.TenantID != tenantID || !card.IsActive {
			continue
		}
		for _, h := range card.Hashtags {
			if h == tag {
				c := *card
				out = append(out, &c)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memCardRepo) List(_ context.Context, tenantID string) ([]*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Card
	for _, card := range r.cards {
		if card.TenantID == tenantID {
			c := *card
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memCardRepo) Exists(_ context.Context, tenantID, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[id]
	return ok && card.TenantID == tenantID, nil
}

func (r *memCardRepo) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	card, ok := r.cards[id]
	if !ok {
		return repository.ErrNotFound
	}
	card.IsActive = false
	return nil
}

// newTestEngine wires a service and controller over in-memory storage
// with shuffling disabled, so deck order is the resolver's name order.
func newTestEngine(cards *memCardRepo, cfg ServiceConfig) (*Service, *memPlayRepo, *Controller) {
	plays := newMemPlayRepo()
	resolver := deck.NewResolver(cards)
	controller := NewController(plays, resolver, nil, 0, nil)
	controller.shuffle = func([]string) {}
	service := NewService(plays, resolver, controller, nil, cfg)
	service.shuffle = func([]string) {}
	return service, plays, controller
}

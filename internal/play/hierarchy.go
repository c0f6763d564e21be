package play

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/narimato/narimato/internal/deck"
	"github.com/narimato/narimato/internal/events"
	"github.com/narimato/narimato/internal/storage/models"
	"github.com/narimato/narimato/internal/storage/repository"
)

// DefaultMaxDepth caps hierarchical nesting at parent plus one level of
// children.
const DefaultMaxDepth = 2

// parentUpdateAttempts bounds the optimistic retry when committing a
// parent play from the controller. The keyed lock serializes the
// controller itself; conflicts can only come from expiry or client
// reads racing in.
const parentUpdateAttempts = 3

// Controller drives the hierarchical decision tree: when a play
// completes, each parent-eligible card in the personal ranking gets a
// child sub-session over its children, run one at a time in parent-rank
// order, and the results are spliced in under their parents.
//
// The controller is single-threaded per parent play: all updates to a
// given parent are serialized on a keyed mutex.
type Controller struct {
	plays      repository.PlayRepository
	resolver   *deck.Resolver
	dispatcher *events.Dispatcher
	maxDepth   int
	logger     *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// shuffle is swappable so tests can fix child deck order.
	shuffle func([]string)
}

// NewController creates the hierarchical controller. maxDepth <= 0
// selects DefaultMaxDepth.
func NewController(plays repository.PlayRepository, resolver *deck.Resolver, dispatcher *events.Dispatcher, maxDepth int, logger *slog.Logger) *Controller {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		plays:      plays,
		resolver:   resolver,
		dispatcher: dispatcher,
		maxDepth:   maxDepth,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
		shuffle: func(ids []string) {
			rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		},
	}
}

// OnCompleted is called by the session service when a play's deck is
// exhausted, before the play is committed. It either finalizes the
// play in place or rewrites it to waiting_for_children and forks the
// first child session. Returns the ID of the next child session the
// client should continue on, if any.
func (c *Controller) OnCompleted(ctx context.Context, p *models.Play) (string, error) {
	depth, err := c.depthOf(ctx, p)
	if err != nil {
		return "", err
	}

	// Expand only while the depth cap allows another level below this
	// play. The cap also breaks hashtag cycles that slip in through
	// external card writes.
	if depth+1 < c.maxDepth {
		childID, expanded, err := c.expand(ctx, p)
		if err != nil {
			return "", err
		}
		if expanded {
			return childID, nil
		}
	}

	if p.HierarchicalRanking == nil {
		p.HierarchicalRanking = p.PersonalRanking
	}

	if p.ParentPlayID == "" {
		return "", nil
	}

	// A completed child hands its ranking back to the parent.
	return c.CompleteChild(ctx, p)
}

// CompleteChild records a completed child play's ranking on its parent
// and advances the expansion: either the next child session is created
// or the parent is finalized. Returns the ID of the next child session,
// if any.
func (c *Controller) CompleteChild(ctx context.Context, child *models.Play) (string, error) {
	if child.ParentPlayID == "" {
		return "", ErrNotChildPlay
	}

	lock := c.lockFor(child.ParentPlayID)
	lock.Lock()
	defer lock.Unlock()

	childRanking := child.HierarchicalRanking
	if childRanking == nil {
		childRanking = child.PersonalRanking
	}

	var nextChildID string
	var finalized *models.Play

	err := c.updateParent(ctx, child.ParentPlayID, func(parent *models.Play) (bool, error) {
		hs := parent.HierarchicalState
		if parent.Status != models.PlayStatusWaitingForChildren || hs == nil {
			// Already finalized (duplicate completion); nothing to do.
			return false, nil
		}
		if hs.ChildID != child.ID {
			c.logger.Warn("stale child completion ignored",
				"parent_play_id", parent.ID, "child_play_id", child.ID, "expected", hs.ChildID)
			return false, nil
		}

		if hs.Results == nil {
			hs.Results = make(map[string][]string)
		}
		hs.Results[hs.Pending[hs.Index]] = childRanking
		hs.Index++

		if hs.Index < len(hs.Pending) {
			next, err := c.createChildPlay(ctx, parent, hs.Pending[hs.Index])
			if err != nil {
				// Leave the parent waiting_for_children so the run can
				// be resumed through CompleteHierarchical.
				return false, fmt.Errorf("fork child session: %w", err)
			}
			hs.ChildID = next.ID
			nextChildID = next.ID
			parent.HierarchicalPhase = models.PhaseChildren
			return true, nil
		}

		now := time.Now().UTC()
		parent.HierarchicalRanking = spliceRanking(parent.PersonalRanking, hs.Results)
		parent.HierarchicalPhase = models.PhaseFinalized
		parent.Status = models.PlayStatusCompleted
		parent.CompletedAt = &now
		hs.ChildID = ""
		finalized = parent
		return true, nil
	})
	if err != nil {
		return "", err
	}

	if finalized != nil {
		if c.dispatcher != nil {
			c.dispatcher.DispatchAsync(events.NewPlayCompleted(ctx, finalized.ID, finalized.TenantID, finalized.DeckTag, len(finalized.Votes)))
		}
		// A finalized play that is itself a child hands its ranking on
		// up the chain.
		if finalized.ParentPlayID != "" {
			return c.CompleteChild(ctx, finalized)
		}
	}
	return nextChildID, nil
}

// expand scans the personal ranking for parent-eligible cards and, when
// any exist, rewrites the play to waiting_for_children and forks the
// first child session.
func (c *Controller) expand(ctx context.Context, p *models.Play) (string, bool, error) {
	var parents []string
	for _, cardID := range p.PersonalRanking {
		children, err := c.resolver.ResolveChildren(ctx, p.TenantID, cardID)
		if err != nil {
			return "", false, err
		}
		if len(children) >= deck.MinDeckSize {
			parents = append(parents, cardID)
		}
	}
	if len(parents) == 0 {
		return "", false, nil
	}

	child, err := c.createChildPlay(ctx, p, parents[0])
	if err != nil {
		return "", false, fmt.Errorf("fork child session: %w", err)
	}

	p.Status = models.PlayStatusWaitingForChildren
	p.HierarchicalPhase = models.PhaseParents
	p.CompletedAt = nil
	p.HierarchicalState = &models.HierarchicalState{
		Pending: parents,
		Index:   0,
		Results: make(map[string][]string),
		ChildID: child.ID,
	}

	c.logger.Info("hierarchical expansion started",
		"play_id", p.ID, "parents", len(parents), "first_child_play_id", child.ID)
	return child.ID, true, nil
}

// createChildPlay forks a new play over the children of parentCardID.
// The child inherits the parent's tenant, session, and expiry.
func (c *Controller) createChildPlay(ctx context.Context, parent *models.Play, parentCardID string) (*models.Play, error) {
	tag, children, err := c.resolver.ResolveChildDeck(ctx, parent.TenantID, parentCardID)
	if err != nil {
		return nil, err
	}
	if len(children) < deck.MinDeckSize {
		return nil, fmt.Errorf("parent card %s no longer has %d children", parentCardID, deck.MinDeckSize)
	}

	ids := make([]string, len(children))
	copy(ids, children)
	c.shuffle(ids)

	now := time.Now().UTC()
	child := &models.Play{
		ID:                uuid.NewString(),
		TenantID:          parent.TenantID,
		SessionID:         parent.SessionID,
		DeckUUID:          deck.UUID(tag, children),
		DeckTag:           tag,
		Deck:              ids,
		Status:            models.PlayStatusActive,
		State:             models.PlayStateSwiping,
		Version:           0,
		CreatedAt:         now,
		LastActivity:      now,
		ExpiresAt:         parent.ExpiresAt,
		HierarchicalPhase: models.PhaseChildren,
		ParentPlayID:      parent.ID,
	}

	if err := c.plays.Create(ctx, child); err != nil {
		return nil, err
	}
	return child, nil
}

// updateParent loads the parent play, applies mutate, and commits
// conditionally on the loaded version, retrying a bounded number of
// times. mutate returns false to skip the write.
func (c *Controller) updateParent(ctx context.Context, parentID string, mutate func(*models.Play) (bool, error)) error {
	for attempt := 0; attempt < parentUpdateAttempts; attempt++ {
		parent, err := c.plays.Get(ctx, parentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load parent play: %w", err)
		}

		changed, err := mutate(parent)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		err = c.plays.Update(ctx, parent, parent.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return fmt.Errorf("commit parent play: %w", err)
		}
	}
	return ErrConcurrentModification
}

// spliceRanking flattens the personal ranking with each parent card
// immediately followed by its recorded child ranking.
func spliceRanking(personal []string, results map[string][]string) []string {
	out := make([]string, 0, len(personal))
	for _, cardID := range personal {
		out = append(out, cardID)
		out = append(out, results[cardID]...)
	}
	return out
}

// depthOf counts how many parent links sit above the play, bounded by
// the depth cap.
func (c *Controller) depthOf(ctx context.Context, p *models.Play) (int, error) {
	depth := 0
	parentID := p.ParentPlayID
	for parentID != "" && depth <= c.maxDepth {
		parent, err := c.plays.Get(ctx, parentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				break
			}
			return 0, fmt.Errorf("walk parent chain: %w", err)
		}
		depth++
		parentID = parent.ParentPlayID
	}
	return depth, nil
}

func (c *Controller) lockFor(parentID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.locks[parentID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[parentID] = lock
	}
	return lock
}

package notification

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation for development and
// tests. It applies the same transition rules as the database-backed stores.
type MemoryStorage struct {
	mu     sync.RWMutex
	byUser map[string][]*Notification
	byID   map[string]*Notification
	idem   map[string]string // recipient + "\x00" + key -> notification id
}

// NewMemoryStorage creates an empty in-memory notification store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		byUser: make(map[string][]*Notification),
		byID:   make(map[string]*Notification),
		idem:   make(map[string]string),
	}
}

func idemKey(recipientID, key string) string {
	return recipientID + "\x00" + key
}

func (s *MemoryStorage) Create(ctx context.Context, n Notification) error {
	if n.ID == "" {
		return ErrNotFound
	}
	if n.RecipientID == "" {
		return ErrMissingRecipient
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if key := n.IdempotencyKey; key != "" {
		if _, exists := s.idem[idemKey(n.RecipientID, key)]; exists {
			return ErrAlreadyExists
		}
	}
	if _, exists := s.byID[n.ID]; exists {
		return ErrAlreadyExists
	}

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.Delivery == nil {
		n.Delivery = make(map[Channel]DeliveryStatus)
	}

	stored := n
	s.byID[n.ID] = &stored
	s.byUser[n.RecipientID] = append(s.byUser[n.RecipientID], &stored)
	if key := n.IdempotencyKey; key != "" {
		s.idem[idemKey(n.RecipientID, key)] = n.ID
	}
	return nil
}

func (s *MemoryStorage) FindByIdempotencyKey(ctx context.Context, recipientID, key string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.idem[idemKey(recipientID, key)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.copyLocked(id)
}

func (s *MemoryStorage) Get(ctx context.Context, recipientID, id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.byID[id]
	if !ok || n.RecipientID != recipientID {
		return nil, ErrNotFound
	}
	return s.copyLocked(id)
}

func (s *MemoryStorage) List(ctx context.Context, recipientID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []Notification
	for _, n := range s.byUser[recipientID] {
		if opts.OnlyUnread && n.ReadAt != nil {
			continue
		}
		if opts.Category != "" && n.Category != opts.Category {
			continue
		}
		if opts.Since != nil && n.CreatedAt.Before(*opts.Since) {
			continue
		}
		filtered = append(filtered, cloneNotification(n))
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	start := opts.Offset
	if start > len(filtered) {
		return []Notification{}, nil
	}
	end := len(filtered)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return filtered[start:end], nil
}

func (s *MemoryStorage) MarkRead(ctx context.Context, recipientID string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		n, ok := s.byID[id]
		if !ok || n.RecipientID != recipientID {
			continue
		}
		// Set-once: the first read timestamp wins.
		if n.ReadAt == nil {
			t := now
			n.ReadAt = &t
		}
	}
	return nil
}

func (s *MemoryStorage) MarkAllRead(ctx context.Context, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, n := range s.byUser[recipientID] {
		if n.ReadAt == nil {
			t := now
			n.ReadAt = &t
		}
	}
	return nil
}

func (s *MemoryStorage) CountUnread(ctx context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.byUser[recipientID] {
		if n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) SetDeliveryOutcome(ctx context.Context, id string, ch Channel, st DeliveryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}

	current, exists := n.Delivery[ch]
	if exists {
		if !current.Outcome.CanTransition(st.Outcome) {
			return ErrInvalidTransition
		}
		if st.RetryCount < current.RetryCount {
			return ErrInvalidTransition
		}
		if current.Outcome.Terminal() && current.Outcome == st.Outcome {
			return nil
		}
	}

	n.Delivery[ch] = st
	return nil
}

func (s *MemoryStorage) copyLocked(id string) (*Notification, error) {
	n, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneNotification(n)
	return &c, nil
}

func cloneNotification(n *Notification) Notification {
	c := *n
	c.Delivery = make(map[Channel]DeliveryStatus, len(n.Delivery))
	for ch, st := range n.Delivery {
		c.Delivery[ch] = st
	}
	if n.ReadAt != nil {
		t := *n.ReadAt
		c.ReadAt = &t
	}
	return c
}

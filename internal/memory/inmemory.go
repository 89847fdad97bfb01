package memory

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	turns    map[string][]ChatTurn
	news     []NewsItem
	newsKeys map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		turns:    make(map[string][]ChatTurn),
		newsKeys: make(map[string]struct{}),
	}
}

func (s *InMemoryStore) Append(_ context.Context, turn ChatTurn) error {
	turn, err := prepareTurn(turn)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[turn.UserID] = append(s.turns[turn.UserID], turn)
	return nil
}

func (s *InMemoryStore) ListRecent(_ context.Context, userID string, limit int) ([]ChatTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[userID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	// Later appends win ties on CreatedAt.
	ordered := make([]ChatTurn, 0, len(arr))
	for i := len(arr) - 1; i >= 0; i-- {
		ordered = append(ordered, arr[i])
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})
	return ordered[:limit], nil
}

func (s *InMemoryStore) AppendNews(_ context.Context, items []NewsItem) ([]NewsItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var added []NewsItem
	for _, it := range prepareNews(items) {
		if _, ok := s.newsKeys[it.ID]; ok {
			continue
		}
		s.newsKeys[it.ID] = struct{}{}
		s.news = append(s.news, it)
		added = append(added, it)
	}
	return added, nil
}

func (s *InMemoryStore) LatestNews(_ context.Context, limit int) ([]NewsItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]NewsItem, len(s.news))
	copy(out, s.news)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Rank < out[j].Rank
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) Kind() string { return "in-memory" }

func (s *InMemoryStore) Close() error { return nil }

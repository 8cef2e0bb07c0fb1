package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/egannguyen/cartsourcing/internal/entity"
	"github.com/egannguyen/cartsourcing/internal/repository"
)

// fakeCartEventStore is an in-memory repository.CartEventStore used to pin
// use-case behavior without a live Postgres instance.
type fakeCartEventStore struct {
	mu       sync.Mutex
	streams  map[string][]entity.Event
	conflict map[string]int // cartID -> remaining forced-conflict SaveEvents calls
}

func newFakeCartEventStore() *fakeCartEventStore {
	return &fakeCartEventStore{streams: make(map[string][]entity.Event), conflict: make(map[string]int)}
}

func (s *fakeCartEventStore) SaveEvents(ctx context.Context, cartID string, events []entity.Event, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if remaining := s.conflict[cartID]; remaining > 0 {
		s.conflict[cartID] = remaining - 1
		return repository.ErrConcurrencyConflict
	}
	if len(events) == 0 {
		return nil
	}
	if len(s.streams[cartID]) != expectedVersion {
		return repository.ErrConcurrencyConflict
	}
	s.streams[cartID] = append(s.streams[cartID], events...)
	return nil
}

func (s *fakeCartEventStore) LoadEvents(ctx context.Context, cartID string) ([]entity.EventStoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.streams[cartID]
	records := make([]entity.EventStoreRecord, len(events))
	for i, e := range events {
		records[i] = entity.EventStoreRecord{AggregateID: cartID, AggregateVersion: i + 1, EventType: e.EventType()}
	}
	return records, nil
}

func (s *fakeCartEventStore) LoadAggregate(ctx context.Context, cartID string) (*entity.CartAggregate, error) {
	s.mu.Lock()
	events := append([]entity.Event(nil), s.streams[cartID]...)
	s.mu.Unlock()

	if len(events) == 0 {
		return nil, nil
	}
	cart := entity.NewCartAggregate(cartID)
	for _, e := range events {
		if err := cart.Apply(e, false); err != nil {
			return nil, err
		}
	}
	cart.ClearUncommittedEvents()
	return cart, nil
}

// forceConflict makes the next `times` SaveEvents calls for cartID fail
// with ErrConcurrencyConflict before succeeding.
func (s *fakeCartEventStore) forceConflict(cartID string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflict[cartID] = times
}

// fakeCartReadModel is an in-memory repository.CartReadModelRepository.
type fakeCartReadModel struct {
	mu    sync.Mutex
	rows  map[string]repository.CartProjection
}

func newFakeCartReadModel() *fakeCartReadModel {
	return &fakeCartReadModel{rows: make(map[string]repository.CartProjection)}
}

func (r *fakeCartReadModel) snapshot(cart *entity.CartAggregate) repository.CartProjection {
	items := cart.Items()
	itemProjs := make([]repository.CartItemProjection, 0, len(items))
	for _, item := range items {
		itemProjs = append(itemProjs, repository.CartItemProjection{
			ProductID: item.ProductID, ProductName: item.ProductName, Price: item.Price,
			Quantity: item.Quantity, TotalPrice: item.TotalPrice(),
		})
	}
	return repository.CartProjection{
		CartID: cart.AggregateID(), UserID: cart.UserID(), Status: string(cart.Status()),
		Items: itemProjs, TotalAmount: cart.TotalAmount(), ItemCount: cart.ItemCount(),
		Version: cart.Version(), CreatedAt: cart.CreatedAt(), LastActivity: cart.LastActivity(),
	}
}

func (r *fakeCartReadModel) CreateProjection(ctx context.Context, cart *entity.CartAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[cart.AggregateID()] = r.snapshot(cart)
	return nil
}

func (r *fakeCartReadModel) UpdateProjection(ctx context.Context, cart *entity.CartAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.rows[cart.AggregateID()]
	if ok && existing.Version > cart.Version() {
		return nil
	}
	r.rows[cart.AggregateID()] = r.snapshot(cart)
	return nil
}

func (r *fakeCartReadModel) GetCart(ctx context.Context, cartID string) (*repository.CartProjection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[cartID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r *fakeCartReadModel) GetUserCarts(ctx context.Context, userID string, status string) ([]repository.CartProjection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.CartProjection
	for _, row := range r.rows {
		if row.UserID == userID && (status == "" || row.Status == status) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeCartReadModel) GetExpiredCartIDs(ctx context.Context, timeout time.Duration) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	cutoff := time.Now().Add(-timeout)
	for id, row := range r.rows {
		if row.Status == string(entity.CartStatusPending) && row.LastActivity.Before(cutoff) {
			out = append(out, id)
		}
	}
	return out, nil
}

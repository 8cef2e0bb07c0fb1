package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/egannguyen/cartsourcing/internal/entity"
	"github.com/egannguyen/cartsourcing/internal/repository"
)

// fakeProductEventStore is an in-memory repository.ProductEventStore.
type fakeProductEventStore struct {
	mu       sync.Mutex
	streams  map[string][]entity.Event
	conflict map[string]int
}

func newFakeProductEventStore() *fakeProductEventStore {
	return &fakeProductEventStore{streams: make(map[string][]entity.Event), conflict: make(map[string]int)}
}

func (s *fakeProductEventStore) SaveEvents(ctx context.Context, productID string, events []entity.Event, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if remaining := s.conflict[productID]; remaining > 0 {
		s.conflict[productID] = remaining - 1
		return repository.ErrConcurrencyConflict
	}
	if len(events) == 0 {
		return nil
	}
	if len(s.streams[productID]) != expectedVersion {
		return repository.ErrConcurrencyConflict
	}
	s.streams[productID] = append(s.streams[productID], events...)
	return nil
}

func (s *fakeProductEventStore) LoadEvents(ctx context.Context, productID string) ([]entity.EventStoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.streams[productID]
	records := make([]entity.EventStoreRecord, len(events))
	for i, e := range events {
		records[i] = entity.EventStoreRecord{AggregateID: productID, AggregateVersion: i + 1, EventType: e.EventType()}
	}
	return records, nil
}

func (s *fakeProductEventStore) LoadAggregate(ctx context.Context, productID string) (*entity.ProductAggregate, error) {
	s.mu.Lock()
	events := append([]entity.Event(nil), s.streams[productID]...)
	s.mu.Unlock()

	if len(events) == 0 {
		return nil, nil
	}
	product := entity.NewProductAggregate(productID)
	for _, e := range events {
		if err := product.Apply(e, false); err != nil {
			return nil, err
		}
	}
	product.ClearUncommittedEvents()
	return product, nil
}

func (s *fakeProductEventStore) forceConflict(productID string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflict[productID] = times
}

// fakeProductReadModel is an in-memory repository.ProductReadModelRepository.
type fakeProductReadModel struct {
	mu   sync.Mutex
	rows map[string]repository.ProductProjection
}

func newFakeProductReadModel() *fakeProductReadModel {
	return &fakeProductReadModel{rows: make(map[string]repository.ProductProjection)}
}

func (r *fakeProductReadModel) snapshot(product *entity.ProductAggregate) repository.ProductProjection {
	now := time.Now()
	reserved := product.ReservedStock(now)
	return repository.ProductProjection{
		ProductID: product.AggregateID(), Name: product.Name(), Price: product.Price(),
		Description: product.Description(), TotalStock: product.TotalStock(),
		ReservedStock: reserved, AvailableStock: product.TotalStock() - reserved,
		Version: product.Version(), CreatedAt: product.CreatedAt(),
	}
}

func (r *fakeProductReadModel) CreateProjection(ctx context.Context, product *entity.ProductAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[product.AggregateID()] = r.snapshot(product)
	return nil
}

func (r *fakeProductReadModel) UpdateProjection(ctx context.Context, product *entity.ProductAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.rows[product.AggregateID()]
	if ok && existing.Version > product.Version() {
		return nil
	}
	r.rows[product.AggregateID()] = r.snapshot(product)
	return nil
}

func (r *fakeProductReadModel) GetProduct(ctx context.Context, productID string) (*repository.ProductProjection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[productID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r *fakeProductReadModel) ListProducts(ctx context.Context) ([]repository.ProductProjection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.ProductProjection
	for _, row := range r.rows {
		out = append(out, row)
	}
	return out, nil
}

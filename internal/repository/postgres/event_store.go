package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/egannguyen/cartsourcing/internal/entity"
	"github.com/egannguyen/cartsourcing/internal/repository"
)

// decoder unmarshals a JSON payload into the concrete event it tags.
type decoder func(data []byte) (entity.Event, error)

type occurredAtOnly struct {
	OccurredAt time.Time `json:"occurred_at"`
}

// genericStore is the append-only log shared by the cart and product event
// stores; it differs only in table name and the set of event types it knows
// how to decode. The unique constraint on (aggregate_id, aggregate_version)
// is the authoritative optimistic-concurrency guard: saveEvents pre-checks
// the current version for a fast failure, then relies on the constraint to
// catch anyone who raced past the pre-check.
type genericStore struct {
	db       *sql.DB
	table    string
	decoders map[string]decoder
}

func (s *genericStore) saveEvents(ctx context.Context, aggregateID string, events []entity.Event, expectedVersion int) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentVersion sql.NullInt64
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT MAX(aggregate_version) FROM %s WHERE aggregate_id = $1", s.table),
		aggregateID,
	).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("read current version: %w", err)
	}

	if int(currentVersion.Int64) != expectedVersion {
		return fmt.Errorf("%w: expected version %d, got %d", repository.ErrConcurrencyConflict, expectedVersion, currentVersion.Int64)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (event_id, aggregate_id, aggregate_version, event_type, event_data, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)",
		s.table,
	))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", event.EventType(), err)
		}

		var ts occurredAtOnly
		occurredAt := time.Now().UTC()
		if err := json.Unmarshal(payload, &ts); err == nil && !ts.OccurredAt.IsZero() {
			occurredAt = ts.OccurredAt
		}

		version := expectedVersion + i + 1

		_, err = stmt.ExecContext(ctx, uuid.NewString(), aggregateID, version, event.EventType(), payload, occurredAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %v", repository.ErrConcurrencyConflict, err)
			}
			return fmt.Errorf("insert event %s: %w", event.EventType(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", repository.ErrConcurrencyConflict, err)
		}
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (s *genericStore) loadEvents(ctx context.Context, aggregateID string) ([]entity.EventStoreRecord, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT event_id, aggregate_id, aggregate_version, event_type, event_data, occurred_at, created_at FROM %s WHERE aggregate_id = $1 ORDER BY aggregate_version ASC",
		s.table,
	), aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query events for %s: %w", aggregateID, err)
	}
	defer rows.Close()

	var records []entity.EventStoreRecord
	for rows.Next() {
		var r entity.EventStoreRecord
		if err := rows.Scan(&r.EventID, &r.AggregateID, &r.AggregateVersion, &r.EventType, &r.EventData, &r.OccurredAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return records, nil
}

func (s *genericStore) decodeAll(records []entity.EventStoreRecord) ([]entity.Event, error) {
	events := make([]entity.Event, 0, len(records))
	for _, r := range records {
		dec, ok := s.decoders[r.EventType]
		if !ok {
			return nil, fmt.Errorf("%w: %s", entity.ErrUnknownEventType, r.EventType)
		}
		event, err := dec(r.EventData)
		if err != nil {
			return nil, fmt.Errorf("decode event %s: %w", r.EventType, err)
		}
		events = append(events, event)
	}
	return events, nil
}

// isUniqueViolation recognizes a Postgres unique_violation (23505) the way
// the teacher's code translates an IntegrityError into a concurrency conflict.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return asPQError(err, &pqErr) && pqErr.Code == "23505"
}

func asPQError(err error, target **pq.Error) bool {
	for err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			*target = pqErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// === Cart event store ===

func cartDecoders() map[string]decoder {
	return map[string]decoder{
		"CartCreated":         decodeInto[entity.CartCreated],
		"ItemAddedToCart":     decodeInto[entity.ItemAddedToCart],
		"ItemRemovedFromCart": decodeInto[entity.ItemRemovedFromCart],
		"ItemQuantityChanged": decodeInto[entity.ItemQuantityChanged],
		"CartCheckedOut":      decodeInto[entity.CartCheckedOut],
		"CartExpired":         decodeInto[entity.CartExpired],
	}
}

func decodeInto[T entity.Event](data []byte) (entity.Event, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// CartStore persists and replays the Cart aggregate's event stream against
// the cart_events table.
type CartStore struct {
	store *genericStore
}

// NewCartEventStore wires a CartStore to db.
func NewCartEventStore(db *sql.DB) *CartStore {
	return &CartStore{store: &genericStore{db: db, table: "cart_events", decoders: cartDecoders()}}
}

func (s *CartStore) SaveEvents(ctx context.Context, cartID string, events []entity.Event, expectedVersion int) error {
	return s.store.saveEvents(ctx, cartID, events, expectedVersion)
}

func (s *CartStore) LoadEvents(ctx context.Context, cartID string) ([]entity.EventStoreRecord, error) {
	return s.store.loadEvents(ctx, cartID)
}

// LoadAggregate replays the full stream for cartID into a fresh
// CartAggregate. It returns (nil, nil) when the stream is empty.
func (s *CartStore) LoadAggregate(ctx context.Context, cartID string) (*entity.CartAggregate, error) {
	records, err := s.store.loadEvents(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	events, err := s.store.decodeAll(records)
	if err != nil {
		return nil, err
	}

	cart := entity.NewCartAggregate(cartID)
	for _, e := range events {
		if err := cart.Apply(e, false); err != nil {
			return nil, fmt.Errorf("replay cart %s: %w", cartID, err)
		}
	}
	cart.ClearUncommittedEvents()
	return cart, nil
}

// === Product event store ===

func productDecoders() map[string]decoder {
	return map[string]decoder{
		"ProductCreated":                  decodeInto[entity.ProductCreated],
		"ProductStockReserved":            decodeInto[entity.ProductStockReserved],
		"ProductStockReservationReleased": decodeInto[entity.ProductStockReservationReleased],
		"ProductStockIncreased":           decodeInto[entity.ProductStockIncreased],
		"ProductStockDecreased":           decodeInto[entity.ProductStockDecreased],
		"ProductPriceChanged":             decodeInto[entity.ProductPriceChanged],
		"ProductUpdated":                  decodeInto[entity.ProductUpdated],
	}
}

// ProductStore persists and replays the Product aggregate's event stream
// against the product_events table.
type ProductStore struct {
	store *genericStore
}

// NewProductEventStore wires a ProductStore to db.
func NewProductEventStore(db *sql.DB) *ProductStore {
	return &ProductStore{store: &genericStore{db: db, table: "product_events", decoders: productDecoders()}}
}

func (s *ProductStore) SaveEvents(ctx context.Context, productID string, events []entity.Event, expectedVersion int) error {
	return s.store.saveEvents(ctx, productID, events, expectedVersion)
}

func (s *ProductStore) LoadEvents(ctx context.Context, productID string) ([]entity.EventStoreRecord, error) {
	return s.store.loadEvents(ctx, productID)
}

// LoadAggregate replays the full stream for productID into a fresh
// ProductAggregate. It returns (nil, nil) when the stream is empty.
func (s *ProductStore) LoadAggregate(ctx context.Context, productID string) (*entity.ProductAggregate, error) {
	records, err := s.store.loadEvents(ctx, productID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	events, err := s.store.decodeAll(records)
	if err != nil {
		return nil, err
	}

	product := entity.NewProductAggregate(productID)
	for _, e := range events {
		if err := product.Apply(e, false); err != nil {
			return nil, fmt.Errorf("replay product %s: %w", productID, err)
		}
	}
	product.ClearUncommittedEvents()
	return product, nil
}

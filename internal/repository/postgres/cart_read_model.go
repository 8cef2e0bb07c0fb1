package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/egannguyen/cartsourcing/internal/entity"
	"github.com/egannguyen/cartsourcing/internal/repository"
)

// CartReadModel serves the denormalized cart_projections table. It is the
// query side of the CQRS split: handlers and the expiration scheduler read
// from here, never from the event store.
type CartReadModel struct {
	db *sql.DB
}

// NewCartReadModel wires a CartReadModel to db.
func NewCartReadModel(db *sql.DB) *CartReadModel {
	return &CartReadModel{db: db}
}

func (r *CartReadModel) CreateProjection(ctx context.Context, cart *entity.CartAggregate) error {
	items := projectItems(cart.Items())
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart items: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cart_projections
			(cart_id, user_id, status, items, total_amount, item_count, version, created_at, last_activity, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (cart_id) DO NOTHING`,
		cart.AggregateID(), cart.UserID(), string(cart.Status()), itemsJSON,
		cart.TotalAmount(), cart.ItemCount(), cart.Version(), cart.CreatedAt(), cart.LastActivity(),
	)
	if err != nil {
		return fmt.Errorf("insert cart projection %s: %w", cart.AggregateID(), err)
	}
	return nil
}

// UpdateProjection overwrites the row with a full snapshot of cart's current
// state. The WHERE clause on version guards against an out-of-order write
// from a stale retry clobbering a newer one.
func (r *CartReadModel) UpdateProjection(ctx context.Context, cart *entity.CartAggregate) error {
	items := projectItems(cart.Items())
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart items: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE cart_projections
		SET status = $1, items = $2, total_amount = $3, item_count = $4,
		    version = $5, last_activity = $6, updated_at = NOW()
		WHERE cart_id = $7 AND version <= $5`,
		string(cart.Status()), itemsJSON, cart.TotalAmount(), cart.ItemCount(),
		cart.Version(), cart.LastActivity(), cart.AggregateID(),
	)
	if err != nil {
		return fmt.Errorf("update cart projection %s: %w", cart.AggregateID(), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		// No existing row (projection not yet created) or a newer version
		// already won; fall back to CreateProjection's insert-or-ignore, so
		// a missed CreateProjection cannot strand a cart with no read-model
		// row at all, while a newer row is left as it is.
		return r.CreateProjection(ctx, cart)
	}
	return nil
}

func (r *CartReadModel) GetCart(ctx context.Context, cartID string) (*repository.CartProjection, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT cart_id, user_id, status, items, total_amount, item_count, version, created_at, last_activity, updated_at
		FROM cart_projections WHERE cart_id = $1`, cartID)
	proj, err := scanCartProjection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return proj, err
}

func (r *CartReadModel) GetUserCarts(ctx context.Context, userID string, status string) ([]repository.CartProjection, error) {
	query := `
		SELECT cart_id, user_id, status, items, total_amount, item_count, version, created_at, last_activity, updated_at
		FROM cart_projections WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query carts for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []repository.CartProjection
	for rows.Next() {
		proj, err := scanCartProjection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *proj)
	}
	return out, rows.Err()
}

// GetExpiredCartIDs lists PENDING carts whose last_activity is older than
// timeout, for the expiration scheduler to sweep.
func (r *CartReadModel) GetExpiredCartIDs(ctx context.Context, timeout time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-timeout)
	rows, err := r.db.QueryContext(ctx,
		`SELECT cart_id FROM cart_projections WHERE status = $1 AND last_activity < $2`,
		string(entity.CartStatusPending), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query expired carts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired cart id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCartProjection(row rowScanner) (*repository.CartProjection, error) {
	var p repository.CartProjection
	var itemsJSON []byte
	if err := row.Scan(&p.CartID, &p.UserID, &p.Status, &itemsJSON, &p.TotalAmount, &p.ItemCount,
		&p.Version, &p.CreatedAt, &p.LastActivity, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &p.Items); err != nil {
		return nil, fmt.Errorf("unmarshal cart items for %s: %w", p.CartID, err)
	}
	return &p, nil
}

func projectItems(items map[string]entity.CartItem) []repository.CartItemProjection {
	out := make([]repository.CartItemProjection, 0, len(items))
	for _, item := range items {
		out = append(out, repository.CartItemProjection{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Price:       item.Price,
			Quantity:    item.Quantity,
			TotalPrice:  item.TotalPrice(),
		})
	}
	return out
}

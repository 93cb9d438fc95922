package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"hub-order-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrNotFound marks lookups for rows that do not exist
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// GetHubStock retrieves stock counters for one product at a hub
func (s *Store) GetHubStock(ctx context.Context, hubID, productID int64) (*models.HubStock, error) {
	var hs models.HubStock
	err := s.db.GetContext(ctx, &hs,
		"SELECT * FROM hub_stock WHERE hub_id = $1 AND product_id = $2", hubID, productID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stock for hub %d product %d: %w", hubID, productID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &hs, nil
}

// GetHubStocks retrieves stock counters for a set of products at a hub
func (s *Store) GetHubStocks(ctx context.Context, hubID int64, productIDs []int64) ([]models.HubStock, error) {
	if len(productIDs) == 0 {
		return []models.HubStock{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT * FROM hub_stock WHERE hub_id = ? AND product_id IN (?)", hubID, productIDs)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var stocks []models.HubStock
	err = s.db.SelectContext(ctx, &stocks, query, args...)
	return stocks, err
}

// ReserveStockTx reserves stock for all items or none of them. Each decrement
// is a conditional update guarded on available_stock, so two concurrent
// reservations for the last unit cannot both succeed. When any item is short
// the transaction rolls back and the shortfalls are returned.
func (s *Store) ReserveStockTx(ctx context.Context, hubID int64, items []models.ItemQty) ([]models.Shortfall, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	shortfalls, err := reserveInTx(ctx, tx, hubID, items)
	if err != nil {
		return nil, err
	}
	if len(shortfalls) > 0 {
		return shortfalls, nil // rollback via defer
	}

	return nil, tx.Commit()
}

// RevalidateReservationTx releases the order's current hold and re-reserves
// the full quantities in one transaction. On shortfall everything rolls back,
// so the released units are restored rather than left loose.
func (s *Store) RevalidateReservationTx(ctx context.Context, hubID int64, held, want []models.ItemQty) ([]models.Shortfall, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, it := range held {
		if it.Quantity <= 0 {
			continue
		}
		if err := creditInTx(ctx, tx, hubID, it.ProductID, it.Quantity); err != nil {
			return nil, err
		}
	}

	shortfalls, err := reserveInTx(ctx, tx, hubID, want)
	if err != nil {
		return nil, err
	}
	if len(shortfalls) > 0 {
		return shortfalls, nil
	}

	return nil, tx.Commit()
}

func reserveInTx(ctx context.Context, tx *sqlx.Tx, hubID int64, items []models.ItemQty) ([]models.Shortfall, error) {
	// rows are always locked in product_id order so two concurrent multi-item
	// reserves cannot deadlock on opposite item orders
	ordered := make([]models.ItemQty, len(items))
	copy(ordered, items)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ProductID < ordered[j].ProductID })

	var shortfalls []models.Shortfall

	for _, it := range ordered {
		res, err := tx.ExecContext(ctx, `
			UPDATE hub_stock
			SET available_stock = available_stock - $1, updated_at = NOW()
			WHERE hub_id = $2 AND product_id = $3 AND available_stock >= $1`,
			it.Quantity, hubID, it.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve stock: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			var available int
			err := tx.GetContext(ctx, &available,
				"SELECT available_stock FROM hub_stock WHERE hub_id = $1 AND product_id = $2 FOR UPDATE",
				hubID, it.ProductID)
			if err == sql.ErrNoRows {
				available = 0
				err = nil
			}
			if err != nil {
				return nil, err
			}
			shortfalls = append(shortfalls, models.Shortfall{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: available,
			})
		}
	}

	return shortfalls, nil
}

func creditInTx(ctx context.Context, tx *sqlx.Tx, hubID, productID int64, quantity int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE hub_stock
		SET available_stock = available_stock + $1, updated_at = NOW()
		WHERE hub_id = $2 AND product_id = $3`,
		quantity, hubID, productID)
	return err
}

// ReleaseStock credits a reserved quantity back to available_stock. The guard
// on total_stock keeps a double credit from pushing available past total.
func (s *Store) ReleaseStock(ctx context.Context, hubID, productID int64, quantity int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE hub_stock
		SET available_stock = available_stock + $1, updated_at = NOW()
		WHERE hub_id = $2 AND product_id = $3 AND available_stock + $1 <= total_stock`,
		quantity, hubID, productID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("release would exceed total stock for hub %d product %d", hubID, productID)
	}
	return nil
}

// FulfillStock converts a reservation to a sale: total_stock drops while
// available_stock stays as it was at reserve time. The guard keeps the
// invariant available_stock <= total_stock.
func (s *Store) FulfillStock(ctx context.Context, hubID, productID int64, quantity int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE hub_stock
		SET total_stock = total_stock - $1, updated_at = NOW()
		WHERE hub_id = $2 AND product_id = $3 AND total_stock - $1 >= available_stock`,
		quantity, hubID, productID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("fulfill exceeds reserved stock for hub %d product %d", hubID, productID)
	}
	return nil
}

// RestockStock increments both counters and returns the new values
func (s *Store) RestockStock(ctx context.Context, hubID, productID int64, quantity int) (*models.HubStock, error) {
	var hs models.HubStock
	err := s.db.GetContext(ctx, &hs, `
		INSERT INTO hub_stock (hub_id, product_id, total_stock, available_stock)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (hub_id, product_id) DO UPDATE
		SET total_stock = hub_stock.total_stock + $3,
		    available_stock = hub_stock.available_stock + $3,
		    updated_at = NOW()
		RETURNING *`,
		hubID, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to restock: %w", err)
	}
	return &hs, nil
}

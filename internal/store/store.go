package store

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

//go:embed schema.sql
var schema string

const productColumns = `id, seller_id, name, price, stock_quantity, active, created_at, updated_at`

// Store is the Postgres Repository.
type Store struct {
	db *sqlx.DB
}

var _ Repository = (*Store)(nil)

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &Store{db: db}, nil
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return errors.Wrap(err, "apply schema")
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn in a READ COMMITTED transaction. Row locks taken through
// the Tx are held until commit or rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}

// CreateProduct inserts a catalog row.
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (seller_id, name, price, stock_quantity, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query, p.SellerID, p.Name, p.Price, p.StockQuantity, p.Active).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return errors.Wrap(err, "insert product")
}

// UpdateProduct writes catalog fields. Stock is left untouched.
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET seller_id = $1, name = $2, price = $3, active = $4, updated_at = NOW() WHERE id = $5",
		p.SellerID, p.Name, p.Price, p.Active, p.ID)
	if err != nil {
		return errors.Wrapf(err, "update product %d", p.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("product not found: %d", p.ID)
	}
	return nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("product not found: %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "select product %d", id)
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs without locking them.
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT "+productColumns+" FROM products WHERE id = ANY($1) ORDER BY id", pq.Array(ids))
	return products, errors.Wrap(err, "select products")
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, errors.Wrap(err, "check processed event")
}

// MarkEventProcessed inserts the event row; the insert is the claim.
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	if err != nil {
		return false, errors.Wrap(err, "mark processed event")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "mark processed event")
	}
	return n == 1, nil
}

// isUniqueViolation reports a Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

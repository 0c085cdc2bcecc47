package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/order"
)

// NamedExecer is the part of *sqlx.DB used by OrderStore.
type NamedExecer interface {
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

const insertOrder = `INSERT INTO orders
	(id, chat_id, user_id, update_id, name, phone, comment, delivered, created_at)
VALUES
	(:id, :chat_id, :user_id, :update_id, :name, :phone, :comment, :delivered, :created_at)`

type orderRecord struct {
	ID        string    `db:"id"`
	ChatID    int64     `db:"chat_id"`
	UserID    int64     `db:"user_id"`
	UpdateID  int64     `db:"update_id"`
	Name      string    `db:"name"`
	Phone     string    `db:"phone"`
	Comment   string    `db:"comment"`
	Delivered bool      `db:"delivered"`
	CreatedAt time.Time `db:"created_at"`
}

// OrderStore archives completed orders in Postgres.
type OrderStore struct {
	db    NamedExecer
	newID func() string
}

// NewOrderStore wraps db, typically a *sqlx.DB.
func NewOrderStore(db NamedExecer) (*OrderStore, error) {
	if db == nil {
		return nil, errors.New("database: order store requires a db")
	}
	return &OrderStore{db: db, newID: uuid.NewString}, nil
}

// Save inserts p and returns the generated order ID.
func (s *OrderStore) Save(ctx context.Context, p order.Placed) (string, error) {
	rec := s.record(p)
	start := time.Now()
	if _, err := s.db.NamedExecContext(ctx, insertOrder, rec); err != nil {
		return "", fmt.Errorf("database: insert order: %w", err)
	}
	logger.Debug(ctx, "db", "order.insert",
		slog.String("status", "ok"),
		slog.String("order_id", rec.ID),
		slog.Duration("duration", time.Since(start)),
	)
	return rec.ID, nil
}

func (s *OrderStore) record(p order.Placed) orderRecord {
	createdAt := p.PlacedAt.UTC()
	if p.PlacedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return orderRecord{
		ID:        s.newID(),
		ChatID:    p.ChatID,
		UserID:    p.UserID,
		UpdateID:  int64(p.UpdateID),
		Name:      p.Name,
		Phone:     p.Phone,
		Comment:   p.Comment,
		Delivered: p.Delivered,
		CreatedAt: createdAt,
	}
}

package database

import (
	"context"
	"fmt"

	"chmura-plikow/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
	*Queries
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:    pool,
		Queries: New(pool),
	}
}

// ExecTx runs fn inside a single transaction. Move and restore operations
// use this so that invariant re-validation and the write see the same
// snapshot.
func (s *Store) ExecTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	q := New(tx)
	err = fn(q)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}

// CreateNodeWithEvent persists the node and its journal entry in one
// transaction, so the journal never misses a created node. Returns the
// marshaled event for post-commit fanout.
func (s *Store) CreateNodeWithEvent(ctx context.Context, arg CreateNodeParams, eventType string) (*models.Node, []byte, error) {
	var node *models.Node
	var eventBytes []byte

	err := s.ExecTx(ctx, func(q *Queries) error {
		n, err := q.CreateNode(ctx, arg)
		if err != nil {
			return err
		}
		node = n

		eventBytes, err = q.LogEvent(ctx, arg.OwnerID, eventType, n)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return node, eventBytes, nil
}

func (s *Store) GetPool() *pgxpool.Pool {
	return s.pool
}

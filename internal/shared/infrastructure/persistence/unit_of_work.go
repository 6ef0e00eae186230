// Package persistence carries the ambient database transaction that lets the
// webhook reconciler write subscriptions, purchases, the event ledger and the
// outbox atomically.
package persistence

import (
	"context"
	"errors"
)

// ErrNoTransaction is returned by Commit or Rollback on a context that has
// no transaction from Begin.
var ErrNoTransaction = errors.New("no transaction in context")

type ambientKey[T any] struct{}

// ambientTx is the transaction a unit of work attached to a context. Only
// the outermost Begin owns it; nested units join without committing.
type ambientTx[T any] struct {
	tx    T
	owned bool
}

func attach[T any](ctx context.Context, tx T, owned bool) context.Context {
	return context.WithValue(ctx, ambientKey[T]{}, ambientTx[T]{tx: tx, owned: owned})
}

func ambient[T any](ctx context.Context) (ambientTx[T], bool) {
	info, ok := ctx.Value(ambientKey[T]{}).(ambientTx[T])
	return info, ok
}

// txUnit implements Begin, Commit and Rollback for one transaction type.
type txUnit[T any] struct {
	begin    func(ctx context.Context) (T, error)
	commit   func(ctx context.Context, tx T) error
	rollback func(ctx context.Context, tx T) error
}

// Begin starts a transaction, or joins the one already on ctx.
func (u txUnit[T]) Begin(ctx context.Context) (context.Context, error) {
	if info, ok := ambient[T](ctx); ok {
		return attach(ctx, info.tx, false), nil
	}
	tx, err := u.begin(ctx)
	if err != nil {
		return nil, err
	}
	return attach(ctx, tx, true), nil
}

// Commit commits when this unit started the transaction.
func (u txUnit[T]) Commit(ctx context.Context) error {
	info, ok := ambient[T](ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !info.owned {
		return nil
	}
	return u.commit(ctx, info.tx)
}

// Rollback rolls back when this unit started the transaction. A nested unit
// leaves the decision to the outermost one, which sees the returned error.
func (u txUnit[T]) Rollback(ctx context.Context) error {
	info, ok := ambient[T](ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !info.owned {
		return nil
	}
	return u.rollback(ctx, info.tx)
}

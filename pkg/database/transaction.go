package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

// RunInTx runs fn inside a transaction carried on the context. Repositories pick it up
// through Executor. A transaction already on the context is joined rather than nested,
// and only the outermost call commits.
func RunInTx(ctx context.Context, db DB, fn func(ctx context.Context) error) (err error) {
	if tx, ok := ctx.Value(txKey).(*sqlx.Tx); ok && tx != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error while beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("error while committing transaction: %w", err)
	}
	return nil
}

// Executor returns the transaction on ctx when there is one, otherwise db.
func Executor(ctx context.Context, db DB) Queryer {
	if tx, ok := ctx.Value(txKey).(*sqlx.Tx); ok && tx != nil {
		return tx
	}
	return db
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	tx, ok := ctx.Value(txKey).(*sqlx.Tx)
	return ok && tx != nil
}

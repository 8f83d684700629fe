package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// Repositories run on Tx when it is set and on their own connection otherwise.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Background is a Context with no transaction.
func Background(ctx context.Context) Context {
	return Context{Ctx: ctx}
}

// Conn returns the handle a repository should query through.
func (c Context) Conn(base *gorm.DB) *gorm.DB {
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if c.Tx != nil {
		return c.Tx.WithContext(ctx)
	}
	return base.WithContext(ctx)
}

// InTx reports whether the context carries a transaction.
func (c Context) InTx() bool { return c.Tx != nil }

package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction so a
// repo call can join a caller's transaction or fall back to the shared pool.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Session resolves the handle a repo should run on: the bundled transaction
// when present, otherwise the fallback, with the request context applied.
func (c Context) Session(fallback *gorm.DB) *gorm.DB {
	t := c.Tx
	if t == nil {
		t = fallback
	}
	return t.WithContext(c.Ctx)
}

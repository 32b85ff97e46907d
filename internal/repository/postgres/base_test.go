package postgres

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
)

func TestWhereBuilder(t *testing.T) {
	var w where
	w.raw("deleted_at IS NULL")
	w.add("status = ?", "approved")
	w.add("(name ILIKE ? OR description ILIKE ?)", "%derm%")

	assert.Equal(t, " WHERE deleted_at IS NULL AND status = $1 AND (name ILIKE $2 OR description ILIKE $2)", w.String())
	assert.Len(t, w.args, 2)

	suffix := w.page(model.Page{Page: 3, PageSize: 10})
	assert.Equal(t, " LIMIT $3 OFFSET $4", suffix)
	assert.Equal(t, []interface{}{"approved", "%derm%", 10, 20}, w.args)
}

func TestEmptyWhere(t *testing.T) {
	var w where
	assert.Equal(t, "", w.String())
}

func TestErrorMapping(t *testing.T) {
	assert.ErrorIs(t, notFound(sql.ErrNoRows, "clinic"), repository.ErrNotFound)
	assert.NotErrorIs(t, notFound(errors.New("boom"), "clinic"), repository.ErrNotFound)

	dup := &pq.Error{Code: uniqueViolation}
	assert.ErrorIs(t, conflict(dup, "create user"), repository.ErrConflict)
	assert.NotErrorIs(t, conflict(errors.New("boom"), "create user"), repository.ErrConflict)
}

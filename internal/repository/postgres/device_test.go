package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDeviceRepository(t *testing.T) {
	db := &Connection{}
	repo := NewDeviceRepository(db)

	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

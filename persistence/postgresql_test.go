package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))

	// Wrapped driver errors must still be recognized.
	wrapped := fmt.Errorf("insert user: %w", &pq.Error{Code: "23505"})
	assert.True(t, isUniqueViolation(wrapped))

	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}), "foreign key violation is not a duplicate")
	assert.False(t, isUniqueViolation(errors.New("connection refused")))
	assert.False(t, isUniqueViolation(nil))
}

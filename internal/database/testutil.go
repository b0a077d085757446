package database

import (
	"fmt"
	"sync/atomic"
	"testing"
)

var testUserCounter int64

// NewTestDB opens an in-memory database with migrations applied.
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// CreateTestUser inserts a user with a unique email and returns it.
func CreateTestUser(t *testing.T, db *DB) *User {
	t.Helper()

	n := atomic.AddInt64(&testUserCounter, 1)
	user, err := db.CreateUser(fmt.Sprintf("test%d@example.com", n), fmt.Sprintf("Test User %d", n))
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

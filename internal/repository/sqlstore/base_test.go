package sqlstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestDayLockStatements(t *testing.T) {
	upsert, selectForUpdate := dayLockStatements(DriverMySQL)
	assert.Contains(t, upsert, "ON DUPLICATE KEY UPDATE")
	assert.NotContains(t, upsert, "IGNORE")
	assert.False(t, selectForUpdate)

	upsert, selectForUpdate = dayLockStatements(DriverPostgres)
	assert.Contains(t, upsert, "ON CONFLICT (lock_date) DO NOTHING")
	assert.True(t, selectForUpdate)
}

func TestIsDeadlock(t *testing.T) {
	assert.True(t, isDeadlock(&mysql.MySQLError{Number: 1213}))
	assert.True(t, isDeadlock(fmt.Errorf("failed to lock day: %w", &pq.Error{Code: "40P01"})))
	assert.False(t, isDeadlock(&mysql.MySQLError{Number: 1062}))
	assert.False(t, isDeadlock(errors.New("connection refused")))
	assert.False(t, isDeadlock(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&mysql.MySQLError{Number: 1062}))
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "40P01"}))
}

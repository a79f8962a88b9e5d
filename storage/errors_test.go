package storage

import (
	"database/sql"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	var key = NewStorableKey("topic", PrimaryKeyOf("id", Long, int64(1)))

	var nf = NewNotFoundError("schema", 12)
	assert.True(t, IsNotFound(nf))
	assert.Equal(t, "schema 12 not found", nf.Error())

	var ae = NewAlreadyExistsError(key, errors.New("UNIQUE constraint failed"))
	assert.True(t, IsAlreadyExists(ae))
	assert.False(t, IsStorageFailure(ae))
	assert.Equal(t, "storable topic{id=1} already exists: UNIQUE constraint failed", ae.Error())

	var ia = NewInvalidArgumentError("timeout", "must be non-negative, not %s", "-1s")
	assert.True(t, IsInvalidArgument(ia))
	assert.Equal(t, "invalid timeout: must be non-negative, not -1s", ia.Error())

	var se = NewStorageError(sql.ErrConnDone, "selecting %s", key)
	assert.True(t, IsStorageFailure(se))
	assert.Equal(t, sql.ErrConnDone, errors.Cause(se).(*StorageError).Cause)
	assert.True(t, errors.Is(se, sql.ErrConnDone))
	assert.Equal(t, "selecting topic{id=1}: "+sql.ErrConnDone.Error(), se.Error())

	assert.Nil(t, NewStorageError(nil, "unused"))
}

func TestStorageErrorPreservesClassification(t *testing.T) {
	var err = NewStorageError(NewInvalidArgumentError("param", "bad"), "finding %s", "topic")
	assert.True(t, IsInvalidArgument(err))
	assert.False(t, IsStorageFailure(err))
	assert.Equal(t, "finding topic: invalid param: bad", err.Error())

	err = NewStorageError(ErrUnsupported, "locking")
	assert.True(t, errors.Is(err, ErrUnsupported))
}

package db

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	//ErrConstraint marks a write rejected because it would break a uniqueness rule
	ErrConstraint = errors.New("constraint violation")
	//ErrNotFound marks a write which targeted a row that does not exist
	ErrNotFound = errors.New("record not found")
)

//StorageError is returned by every failing store operation
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %v failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

//NewStorageError wraps err for the named operation, leaving existing StorageErrors untouched.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func wrapErr(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	return NewStorageError(op, err)
}

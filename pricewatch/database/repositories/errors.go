package repositories

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/uptrace/bun/driver/pgdriver"
)

// StorageError wraps a database failure with the operation that produced it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Retryable reports whether the underlying failure is transient (connection
// loss, deadlock, serialization) rather than a schema or constraint problem.
func (e *StorageError) Retryable() bool {
	if e.Err == nil {
		return false
	}

	var pgErr pgdriver.Error
	if errors.As(e.Err, &pgErr) {
		switch code := pgErr.Field('C'); {
		case len(code) >= 2 && code[:2] == "08": // connection exceptions
			return true
		case code == "40001", code == "40P01": // serialization failure, deadlock
			return true
		case code == "57P03": // cannot connect now
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(e.Err, &netErr) {
		return true
	}
	return errors.Is(e.Err, io.EOF) || errors.Is(e.Err, context.DeadlineExceeded)
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Package errs defines the error taxonomy shared by the relay pipeline.
//
// Per-record errors (DecodeError, SchemaMismatchError, ValidationError, DeliveryError)
// are contained at the record boundary. Connection and persistence errors propagate
// to the owning loop.
package errs

import (
	"errors"
	"fmt"
)

// ConnectionError means a feed or broker transport was lost. Recoverable by
// reconnecting at the supervising level.
type ConnectionError struct {
	Component string // "feed", "kafka", "registry"
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection: %v", e.Component, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DecodeError means a single record payload could not be decoded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode record: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// SchemaMismatchError means the writer schema of a payload could not be resolved
// or is not compatible with the reader schema.
type SchemaMismatchError struct {
	SchemaID int
	Err      error
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch (writer schema id %d): %v", e.SchemaID, e.Err)
}

func (e *SchemaMismatchError) Unwrap() error { return e.Err }

// ValidationError means a record is missing a required field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: required field %q is missing", e.Field)
}

// PersistenceError means a store transaction failed. Nothing from the batch is
// visible in the store and the broker position must not advance.
type PersistenceError struct {
	Op  string // "begin", "insert", "commit"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist batch (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DeliveryError means the broker rejected a produced record.
type DeliveryError struct {
	Topic     string
	Partition int32
	Key       string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver record key=%q to %s[%d]: %v", e.Key, e.Topic, e.Partition, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsRecordLevel reports whether err only affects a single record and must not
// abort a batch or a connection.
func IsRecordLevel(err error) bool {
	var (
		de *DecodeError
		se *SchemaMismatchError
		ve *ValidationError
		dl *DeliveryError
	)
	return errors.As(err, &de) || errors.As(err, &se) || errors.As(err, &ve) || errors.As(err, &dl)
}

// Package codec encodes ticker events as Avro using the Confluent wire format:
//
//	byte 0     magic byte (0x00)
//	bytes 1-4  schema id, big endian
//	bytes 5-   Avro binary body
//
// The schema id is obtained by registering the embedded schema with a Registry.
// Decoding resolves the writer schema by id and applies Avro schema resolution
// when it differs from the reader schema.
package codec

import (
	"context"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/hamba/avro/v2"

	"github.com/rickgao/ticker-relay/internal/errs"
	"github.com/rickgao/ticker-relay/internal/model"
)

//go:embed ticker.avsc
var tickerSchemaJSON string

const (
	magicByte  = 0x00
	headerSize = 5
)

// TickerSchema parses the embedded ticker schema.
func TickerSchema() (avro.Schema, error) {
	return avro.Parse(tickerSchemaJSON)
}

// Codec converts TickerEvents to and from framed Avro payloads. Safe for concurrent use.
type Codec struct {
	registry Registry
	schema   avro.Schema
	schemaID int
	header   [headerSize]byte

	mu      sync.RWMutex
	readers map[int]avro.Schema // writer schema id → schema to decode with
}

// New registers the ticker schema under subject and returns a Codec bound to the
// resulting schema id.
func New(ctx context.Context, registry Registry, subject string) (*Codec, error) {
	schema, err := TickerSchema()
	if err != nil {
		return nil, fmt.Errorf("parse ticker schema: %w", err)
	}

	id, err := registry.Register(ctx, subject, schema)
	if err != nil {
		return nil, fmt.Errorf("register schema subject %q: %w", subject, err)
	}

	c := &Codec{
		registry: registry,
		schema:   schema,
		schemaID: id,
		readers:  map[int]avro.Schema{id: schema},
	}
	c.header[0] = magicByte
	binary.BigEndian.PutUint32(c.header[1:], uint32(id))
	return c, nil
}

// SchemaID returns the id the ticker schema was registered under.
func (c *Codec) SchemaID() int { return c.schemaID }

// Encode validates and serializes an event.
func (c *Codec) Encode(event model.TickerEvent) ([]byte, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	body, err := avro.Marshal(c.schema, event)
	if err != nil {
		return nil, fmt.Errorf("avro marshal: %w", err)
	}

	out := make([]byte, headerSize, headerSize+len(body))
	copy(out, c.header[:])
	return append(out, body...), nil
}

// Decode deserializes a framed payload.
//
// Malformed frames return *errs.DecodeError. An unknown or incompatible writer
// schema returns *errs.SchemaMismatchError. A registry transport failure returns
// *errs.ConnectionError, which is not a per-record error.
func (c *Codec) Decode(ctx context.Context, data []byte) (model.TickerEvent, error) {
	var event model.TickerEvent

	if len(data) < headerSize {
		return event, &errs.DecodeError{Err: fmt.Errorf("payload too short: %d bytes", len(data))}
	}
	if data[0] != magicByte {
		return event, &errs.DecodeError{Err: fmt.Errorf("unknown magic byte 0x%02x", data[0])}
	}

	id := int(binary.BigEndian.Uint32(data[1:headerSize]))
	reader, err := c.readerFor(ctx, id)
	if err != nil {
		return event, err
	}

	if err := avro.Unmarshal(reader, data[headerSize:], &event); err != nil {
		return event, &errs.DecodeError{Err: err}
	}
	return event, nil
}

// readerFor returns the schema used to decode payloads written with schema id.
func (c *Codec) readerFor(ctx context.Context, id int) (avro.Schema, error) {
	c.mu.RLock()
	s, ok := c.readers[id]
	c.mu.RUnlock()
	if ok {
		return s, nil
	}

	writer, err := c.registry.Resolve(ctx, id)
	if err != nil {
		var ce *errs.ConnectionError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &errs.SchemaMismatchError{SchemaID: id, Err: err}
	}

	resolved := c.schema
	if writer.Fingerprint() != c.schema.Fingerprint() {
		resolved, err = avro.NewSchemaCompatibility().Resolve(c.schema, writer)
		if err != nil {
			return nil, &errs.SchemaMismatchError{SchemaID: id, Err: err}
		}
	}

	c.mu.Lock()
	c.readers[id] = resolved
	c.mu.Unlock()
	return resolved, nil
}

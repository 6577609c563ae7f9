// Package model defines the ticker record shared by the producer and consumer sides.
//
// Conventions:
//   - Prices and sizes: decimal strings, exactly as sent by the exchange
//   - Nullable fields: pointers, nil means absent (encoded as Avro null, stored as SQL NULL)
//   - Timestamps: ISO-8601 strings on the wire, parsed only at persistence time
package model

// Package wire defines the HTTP replication protocol's messages and the
// codecs that carry them.
//
// Revisions travel in their "<gen>-<tag>" text form. A body is encoded as
// JSON by default, or as deterministic CBOR when the client sends or accepts
// application/cbor.
package wire

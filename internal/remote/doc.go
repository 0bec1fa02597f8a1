// Package remote serves a store as a replication peer over HTTP and provides
// the matching client.
//
// Endpoints:
//
//	GET  /db                         database info
//	GET  /db/_changes?since=&limit=  latest state of records changed after since
//	POST /db/_apply                  offer records; one result per record
//	GET  /db/_updates                websocket announcing {last_seq} after commits
//
// Bodies are JSON unless the request selects CBOR through Content-Type or
// Accept. Inbound records are checked against their revision tags and, when
// configured, a CUE policy. Records failing either are refused one by one.
package remote

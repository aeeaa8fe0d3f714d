// Package gateway serves the agent's query surface over HTTP.
//
// Routes map one-to-one onto query engine operations:
//
//	GET    /probe, /{device}/probe        device schema
//	GET    /current, /{device}/current    latest values, or values as of ?at=
//	GET    /sample, /{device}/sample      observations from ?from= for ?count=
//	GET    /assets, /assets/{ids}         asset documents, ids separated by ";"
//	POST   /asset, /asset/{id}            insert an asset (allow_put)
//	PUT    /asset/{id}                    insert or replace an asset (allow_put)
//	DELETE /asset/{id}, /assets?type=     tombstone assets (allow_put)
//	GET    /health, /metrics              agent health and Prometheus metrics
//
// Every response is JSON. Request errors are rendered as
//
//	{"errors":[{"errorCode":"OUT_OF_RANGE","message":"..."}]}
//
// with the HTTP status chosen from the error code.
//
// # Streaming
//
// Adding ?interval= to current or sample turns the response into a stream.
// Plain HTTP clients receive multipart/x-mixed-replace parts, one JSON
// document per part. Clients that send a websocket upgrade receive one text
// frame per document instead. Sample streams continue from each document's
// nextSequence and emit an empty document when nothing arrived within
// ?heartbeat= milliseconds. A sample stream whose reader falls behind the
// buffer ends with an OUT_OF_RANGE error document.
package gateway

// Package adapter ingests the pipe-delimited line protocol spoken by machine
// adapters.
//
// A Parser turns one line at a time into observations, asset mutations and
// device configuration changes, handing everything to an Ingestor (normally
// *store.Store). Field-level problems never fail a line: a malformed or
// unknown field is dropped and the rest of the line is processed.
//
// A Connection owns one persistent TCP link to an adapter. It reconnects
// with exponential backoff, negotiates the PING/PONG heartbeat, arms read
// deadlines from the advertised timeout and reports connect and disconnect
// transitions to a Lifecycle, which floods the device with UNAVAILABLE on
// disconnect.
//
// Line forms:
//
//	2026-03-01T12:00:00Z|exec|ACTIVE|line|204
//	|pos|10.5                              (agent clock)
//	1200|pos|10.5                          (relative milliseconds)
//	ts|system|FAULT|E12|1|HIGH|spindle overtemp
//	ts|@ASSET@|T1|CuttingTool|<CuttingTool .../>
//	ts|@ASSET@|T1|CuttingTool|--multiline--ABC
//	...
//	--multiline--ABC
//	* calibration: pos|1.0|0.5
//	* PING
package adapter

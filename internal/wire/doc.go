// Package wire builds and parses raw HTTP/1.1 text exchanged with the
// device platform. It does not use net/http: the exact header set and order
// sent by the device are part of the protocol contract.
//
// Four request shapes exist: activate, aliased write, aliased read and
// conditional long-poll read. Responses are parsed leniently, a body shorter
// than Content-Length is returned as is with Truncated flag set.
package wire

/*
Package executor sends compiled requests and runs templates end to end.

# HTTP

HTTPTransport sends a compiler.CompiledRequest over a shared, pooled
http.Client and returns a types.ResponseRecord with status, headers, body,
sizes and duration. Non-2xx responses are records, not errors. Transport
failures are wrapped in a TransportError whose Category (connect, TLS,
timeout, protocol, cancelled) drives the hint returned by Explain.

Pipeline wires one template through the full chain:

	pre-request script -> compile -> oauth -> send -> post-response script + extraction -> variable merge

Execute never panics; every failure ends up in the returned types.Outcome.
A Pipeline may be shared by many goroutines, which is how the load
generator uses it.

# WebSocket

Session keeps a single WebSocket connection. An actor goroutine owns the
connection and the Uninitialized/Connecting/Open/Closed state machine; one
reader and one writer goroutine serve each connection. Send connects on
demand and Close drops the connection so the next Send reconnects. Every
event, failures included, is appended to the session log.

# TLS

BuildTLSConfig loads client certificates and custom CAs for both HTTPS and
wss:// connections.
*/
package executor

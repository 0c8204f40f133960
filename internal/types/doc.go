/*
Package types defines the data structures shared by the restbench packages.

# Templates

RequestTemplate is the user-edited request definition. Every string field may
contain {{name}} placeholders which are resolved against a flat []Variable
table right before compilation. Method, BodyTab and RawBodyKind are closed
enumerations; unknown values are rejected when a project is loaded.

Query, headers and form fields are ordered []Pair lists. A pair with an empty
key or the Disabled flag set is ignored.

# Results

ResponseRecord carries the status, headers, body, timing and sizes of one
exchange plus any variables contributed by the post-response hook. Outcome
wraps either a record or an error so that successes and failures travel
through the same channel.

# WebSocket

WsState and WsMessage describe the persistent WebSocket session and the log
it exposes to the UI.

# Serialization

Templates and projects carry JSON and YAML tags. The `omitempty` tag keeps
saved projects small.
*/
package types

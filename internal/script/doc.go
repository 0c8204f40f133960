// Package script runs user scripts attached to request templates.
//
// A pre-request script sees the unresolved template as request.{url, method,
// headers, params, body} plus a vars object, and may edit all of them. A
// post-response script additionally sees a frozen response.{status, headers,
// body, duration} and may only change vars. Scripts run in an isolated
// JavaScript runtime with a timeout, and failures never fail the request:
// they are reported as diagnostics.
//
// Host functions available to scripts:
//
//	md5 sha256 sha512 hmac_sha256
//	base64_encode base64_decode url_encode url_decode hex_encode hex_decode
//	parse_json to_json json_stringify is_valid_json jmespath
//	console_log random random_string timestamp timestamp_ms uuid
//	read_file write_file append_file file_exists delete_file list_files
//	read_file_bytes write_file_bytes create_dir
//	http_get http_get_bytes http_post http_request
//
// File helpers are confined to the configured fixtures directory.
package script

// Package sanitizer holds the string cleanup helpers applied to inbound
// request payloads and outbound vendor messages: null-byte stripping for
// decoded JSON, whitespace flattening for single-line channels, and digit
// normalization for phone numbers.
package sanitizer

// Package testutil contains helper fakes and builders used across tests to
// reduce boilerplate when scripting model streams, embedders and index
// backends. These helpers are intentionally minimal and are not intended
// for production usage.
package testutil

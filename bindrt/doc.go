// Package bindrt is the runtime support imported by generated Windows API
// bindings: lazily loaded procedures, callback slot registries, ownership
// scopes, string conversions and error values.
//
// Everything except procedure calls and native callback entry points works on
// every platform, so code built on top of it can be tested anywhere.
package bindrt

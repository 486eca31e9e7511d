// Package middleware provides the HTTP middleware chain: request IDs,
// request logging, and session authentication. Permission enforcement
// lives with the permission engine; this package only establishes who the
// caller is.
package middleware

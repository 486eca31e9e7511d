// Package api assembles the HTTP surface: the mux router, the middleware
// chain, and every feature package's handlers. It owns no business logic;
// the composition root builds the dependencies and this package mounts
// them.
package api

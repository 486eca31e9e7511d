// Package audit defines the audit event model and the Logger interface the
// permission engine and admin services emit through.
//
// The engine records every authorization decision (allowed and denied) with
// its structured reason; admin services record role, team, and leadership
// mutations. Persistence of these events is a collaborator's concern: the
// shipped implementation writes structured log lines, and NopLogger is
// available for tests.
package audit

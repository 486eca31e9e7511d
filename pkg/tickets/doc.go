// Package tickets is the first scoped resource over the permission engine
// and the reference translation from an access scope to a store predicate.
// BuildPredicate is the single place a ticket listing's visibility is
// decided; further scoped resources should follow the same shape.
package tickets

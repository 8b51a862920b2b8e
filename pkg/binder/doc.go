// Package binder parses HTTP requests into typed structs.
//
// Each binder processes one source (JSON body, query string, path
// parameters) driven by struct tags, so several binders can be stacked on
// a single route. Binders that do not apply to a request report
// ErrBinderNotApplicable and are skipped by the handler wrapper.
package binder

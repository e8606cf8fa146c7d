// Package sessionkit keeps an authenticated session consistent across three
// asynchronous surfaces: the in-memory state container that the UI reads,
// the durable per-device record in Redis, and the remote identity service
// that issues credentials.
//
// The root package wires the pieces together: Builder constructs a Manager
// from a Config, the Manager drives login, rehydration, company switching,
// permission refresh, and logout, and a background bridge mirrors every
// state mutation into the durable store without ever blocking or rolling
// back the in-memory state.
//
// Subpackages:
//
//   - session: domain model and the Redis-backed durable store
//   - state: the authoritative in-memory container and its event set
//   - identity: HTTP client for the external identity service
//   - refresh: deduplicated credential renewal
//   - permission: pure authorization predicates
//   - guard: the route/inline rendering guard
//   - metrics: Prometheus instrumentation
package sessionkit

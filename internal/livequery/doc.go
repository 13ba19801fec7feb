// Package livequery keeps a caller-owned result set in agreement with a live
// query against the record store.
//
// # Components
//
//   - Controller binds one QuerySpec to one store context. It executes the
//     query and holds the change subscription for the spec's entity kind.
//   - Holder is the long-lived owner of the current Controller, the last good
//     snapshot and the last error. It outlives the component that renders it.
//   - Monitor is the render-time glue: once per render it hands the current
//     context, change token and declared spec to the Holder and returns the
//     Phase to draw.
//   - Token stands in for predicate/sort factories that cannot be compared.
//     Token equality is the only signal that the declared query changed.
//
// # Reconstruction
//
// When the store context changes, the Holder disposes its Controller before
// creating the next one, and seeds the new one from the previous
// Controller's spec rather than from the declaration. Sort keys and filters
// applied at runtime therefore survive both rebuilding the owning component
// and switching contexts.
//
// # Refresh disciplines
//
// DisciplineEager executes on every mutation and store notification.
// DisciplineLazy only marks the Holder dirty and notifies observers; the
// fetch runs on the next Read (or Monitor.Render).
//
// # Failures
//
// Fetch failures never escape the Holder. They are recorded as the last
// error next to the previous snapshot, which is left untouched, and surface
// as a Failed phase until a later fetch succeeds.
//
// # Threading
//
// All mutating calls and notification delivery are expected on one
// goroutine, the owner of the store context. Snapshot, Phase and LastError
// may be called from any goroutine and always observe a complete result.
package livequery

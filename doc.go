// Package goSession manages a client-side authentication session: it acquires,
// persists, refreshes and invalidates a credential pair and routes every authorized
// HTTP request through a pipeline that repairs expired access tokens transparently.
//
// A [Manager] is built with [New] and [Builder.Build]. Its methods are safe to call
// from multiple goroutines; all session state changes go through them.
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Manager], [Builder], [Config], the
// request pipeline ([Transport]) and value types (Snapshot, InvalidationEvent,
// MetricsSnapshot). Persistence lives in credential, identity service calls in
// gateway, and orchestration, dispatch and limiting under internal/.
//
// Three sources drive the session:
//
//   - user actions ([Manager.Login], [Manager.Register], [Manager.Logout], account calls);
//   - the pipeline, which joins the refresh ticket on a 401 and replays the request once;
//   - the invalidation listener, which reacts to events the pipeline publishes when a
//     401 cannot be repaired.
//
// One refresh ticket serves all three: concurrent 401s cause a single refresh call.
// Login, register and logout supersede an outstanding ticket.
//
// # What this package must NOT do
//
//   - Log or audit tokens or passwords.
//   - Let the pipeline or the listener mutate session state directly.
//   - Import any sub-package that re-imports goSession (no import cycles).
package goSession

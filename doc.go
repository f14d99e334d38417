// Package signin coordinates interactive sign-in for back-office users and
// members: password verification, an optional two-factor step, external
// login handoff and the issuance of claims based scheme sessions.
//
// Schemes:
//   - Every user type owns a SchemeSet of four names: the primary session,
//     the pending external login, the pending two-factor challenge and the
//     remembered two-factor client. Sessions issued under one scheme are
//     never accepted under another.
//
// Outcomes:
//   - Sign-in operations report an Outcome (Success, Failed, LockedOut or
//     TwoFactorRequired). Errors are reserved for infrastructure
//     failures, so a wrong password is an outcome and a broken store is an
//     error.
//
// Lockout:
//   - Failed attempts are counted atomically by the store. Reaching
//     LockoutOptions.MaxFailedAccessAttempts sets a lockout end; a
//     successful sign-in resets the counter.
//
// Notifications:
//   - NotificationSink receives login, lockout, password and logout events
//     after the session cookies are written. Sinks run best effort (errors
//     are logged) so forwarding to an audit store never blocks sign-in.
//
// Transports:
//   - CookieTransport carries scheme sessions as signed cookies through a
//     CookieJar (go-router or fiber). MemoryTransport keeps them in process
//     for jobs and tests. RouteSessions wires both into go-router.
package signin

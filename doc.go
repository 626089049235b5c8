// Package buildtracker implements the BuildTracker web application: users
// register, create build projects, post progress updates with ordered steps,
// and comment on each other's updates.
//
// Identity propagation:
//   - SessionClient wraps a SessionSource (cookie token on the server, a
//     credential store on the client) and never fails: transport or token
//     errors are logged and reported as "no session".
//   - IdentityResolver turns the current session into an Identity, enriching
//     it with a best-effort profile lookup. The display name is taken from the
//     first non-empty entry of an ordered list of sources.
//   - IdentityContext holds a resolved Identity for long lived interactive
//     scopes, refreshes on demand, and re-resolves when a SessionNotifier
//     reports sign-in, sign-out, or token refresh.
//
// Ownership:
//   - IsOwner is the only authorization rule: the resolved identity id must
//     equal the owner id stored on the record.
//   - Templates use IsOwner through the is_owner helper to hide controls.
//     Every mutating command re-resolves identity through OwnershipGuard
//     inside its write transaction, so hidden controls are never trusted.
package buildtracker

// Package auth provides stateless token authentication for the support
// portal: signed session and password reset tokens, failed login tracking
// with temporary lockout, the password reset flow and the login gate that
// ties them together.
//
// Tokens:
//   - TokenCodec issues and verifies HS256 JWTs. Session tokens carry the
//     authorities granted at login, reset tokens carry the email and a
//     password_reset purpose. A token of one kind never verifies as the other.
//
// Lockout:
//   - AttemptTracker counts failed logins per normalized username. A key is
//     locked once it reaches the threshold and unlocks when its record
//     expires. Records are bounded by capacity.
//
// Password reset:
//   - ResetTokenFlow mails a reset link and later consumes the token to store
//     a new bcrypt hash. A ResetLedger makes each token single use.
//
// Activity sinks:
//   - ActivitySink receives login and reset events. Sinks run best-effort
//     (errors are logged) so auditing never blocks authentication.
package auth

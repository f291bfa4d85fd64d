// Package identity provides local and federated identities, signed session
// tokens and encrypted third-party API secrets.
//
// Usernames:
//   - Every create path (local registration, federated provisioning and demo
//     seeding) asks the UsernameAllocator for a candidate and retries from
//     scratch when the store reports a unique violation on the username
//     column. The store constraint is the final arbiter, the existence check
//     only avoids obvious collisions.
//
// Sessions:
//   - TokenService signs SessionClaims with HS256. SessionEnricher trusts the
//     identity id carried by the token and re-reads username, email and the
//     username setup flag when they are missing or still pending, so a token
//     never reports a stale or incomplete profile.
//   - RouteAuthenticator reads the token from the session cookie or the
//     Authorization header and re-issues it when the claims changed.
//
// Linked accounts:
//   - AccountLinkManager refuses to remove the last way to sign in. An identity
//     without a password must set one in the same request that drops its last
//     provider.
//
// Secrets:
//   - SecretVault encrypts API secrets with secret.Cipher. Without a configured
//     key nothing is stored and every secret reads as absent.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter. Sinks run best-effort
//     (errors are logged) and events never carry passwords, tokens or secret
//     values.
package identity

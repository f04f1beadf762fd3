// Package auth provides the identity and session-validity core for the
// classbook web application: JWT issuance, a shared session registry, and
// HTTP gate middleware.
//
// Session model:
//   - Each user holds at most one live session. Logging in writes the freshly
//     issued token into the registry under the user id, unconditionally
//     overwriting whatever token was there. Every gate pass cross-checks the
//     presented token against the registered one, so the previous browser's
//     token dies the moment a second login lands.
//   - The registry entry carries the same TTL as the token, and the registry
//     fails closed: if it cannot be reached, requests are treated as
//     unauthenticated rather than trusted on signature alone.
//
// Claims are a cached projection:
//   - Tokens embed username, email, and role as they were at issuance. A
//     profile mutation that touches claim data (such as a username change)
//     re-issues the token and overwrites the session slot so the stale
//     projection cannot outlive the change.
//
// Roles:
//   - Roles form a closed set (learner, staff). ParseRole rejects anything
//     else at construction time, and route guards express requirements as a
//     RoleSet where the empty set admits any authenticated caller.
package auth

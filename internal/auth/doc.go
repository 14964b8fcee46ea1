// Package auth issues and verifies the bearer tokens that guard the vacuum
// zones API.
//
// Tokens are HS256 JWTs signed with the shared security.jwt.secret. Each
// token carries a role and, optionally, the list of masters it may control:
//   - viewer reads rooms, masters and dispatch history
//   - operator may also start, stop and send rooms home
//   - admin may also mint tokens and resync room catalogues
//
// Role permissions are static; nothing is looked up in the database.
package auth

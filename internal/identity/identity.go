// Package identity authenticates operators of the settlement service.
//
// It provides:
//   - LoadOrCreateSigningKey: persists the RSA key that signs operator tokens
//   - TokenIssuer: issues and verifies RS256 operator session JWTs
//   - RequireOperator / RequireRole: Gin middleware enforcing Bearer tokens
package identity

// Package firebase implements goIdentity.CredentialGateway on Firebase
// Authentication.
//
// Identity management and ID token verification go through the Admin SDK.
// Password sign-in and token exchanges have no Admin SDK equivalent.
// Password and custom token sign-in use the Identity Toolkit v3 client; the
// Secure Token refresh grant is called over plain HTTP. Both carry the
// project's web API key.
//
// Refresh token rotation is the provider's behaviour: Secure Token may
// return the presented refresh token unchanged. Revocation through
// RevokeRefreshTokens invalidates every refresh token and, because ID
// tokens are verified with the revocation check, every outstanding ID
// token of the user.
package firebase

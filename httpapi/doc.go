// Package httpapi serves the goIdentity Engine over HTTP.
//
// # Routes
//
//	POST   /register             pre-session, throttled
//	POST   /login                pre-session, throttled
//	POST   /refresh-token        refresh cookie, throttled
//	POST   /reset-password       pre-session, throttled, always 200
//	POST   /verify-email         bearer
//	POST   /change-email         bearer
//	DELETE /change-email         bearer
//	POST   /verify-email-change  bearer
//	POST   /logout               bearer
//	GET    /me                   bearer
//	GET    /healthz
//	GET    /metrics              when a metrics handler is configured
//
// Every unsafe request passes the CSRF guard. Pre-session routes are exempt
// from the token check and, in production mode, still need an allowed
// Origin. The refresh token travels only in an http-only cookie; ID tokens
// are returned in the body and presented as bearer credentials.
package httpapi

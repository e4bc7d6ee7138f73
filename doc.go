// Package authcore is an embeddable authentication and session security
// engine: password login, TOTP and backup-code second factor, JWT access
// tokens with revocation, and rotating refresh sessions with device
// metadata.
//
// The engine owns no HTTP surface and no user table. The embedding
// application supplies a UserDirectory for credential lookup and receives
// security events through an audit sink; everything else (token issuance,
// 2FA verification, refresh rotation, revocation bookkeeping) happens
// inside the engine.
//
// Construct one Engine per process with the Builder:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(redisClient).
//		WithUserDirectory(myDirectory).
//		Build()
//
// Storage is pluggable: Redis (the default, with TTL-driven expiry) or
// Postgres via WithDatabase.
package authcore

// Package auth acquires and caches bearer pull tokens for the mirror
// engine's content-fetch client. It speaks the same realm/service/scope
// token exchange a registry client uses against a Docker-style auth
// server, caching one token per repository until shortly before it
// expires.
package auth

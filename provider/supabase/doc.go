// Package supabase talks to a hosted identity service over its GoTrue REST
// API and reads profiles through PostgREST.
//
// Use Client as the buildtracker.AuthBackend, NewJWTVerifier (or the Client
// itself) as the buildtracker.TokenVerifier and ProfileFinder to enrich
// identities.
package supabase

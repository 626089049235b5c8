// Package local is a development identity service: accounts live in the
// application database, passwords are hashed with bcrypt and access tokens
// are HS256 JWTs shaped like the hosted service tokens.
//
// RegisterRoutes exposes the /auth/v1 subset used by the CLI, so a dev
// server can stand in for the hosted service.
package local

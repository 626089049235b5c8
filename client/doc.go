// Package client keeps a signed in session for long lived processes such as
// the btctl CLI. Tokens are kept in a CredentialStore and refreshed through
// the identity service when they are about to expire.
package client

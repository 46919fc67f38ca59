// Package oidc implements a relying-party authentication engine for the
// OpenID Connect authorization code flow: it builds the authorization
// redirect, exchanges the returned code for tokens, verifies the id_token
// against the provider's rotating signing keys, and encodes/decodes the
// portable credential records the host stores in a session or cookie.
package oidc

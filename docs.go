// oidcauth provides a relying-party OpenID Connect authentication engine:
// the authorization-code flow, id_token verification against a rotating key
// set, and portable credential records for session or cookie storage.
//
// See the oidc package.
package oidcauth

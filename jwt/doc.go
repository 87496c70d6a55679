// Package jwt issues and verifies the access and refresh tokens of an
// enrollment session. Both kinds carry the account id, username, email and
// session id; the typ claim keeps one kind from being accepted as the other.
package jwt

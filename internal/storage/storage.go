// Package storage provides durable key-value persistence for the client's
// session record, the CLI analogue of the browser's local storage.
package storage

// Storage keys shared by the session store and the HTTP client's 401
// handling. Both are always cleared together.
const (
	TokenKey = "jwt_token"
	UserKey  = "user"
)

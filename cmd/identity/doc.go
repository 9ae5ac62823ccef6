// Package identity is the user directory boundary of the messaging server.
//
// Account storage and credential verification live in the CRUD service; this package
// only resolves a user id to the identity fields a websocket handshake is checked against.
package identity

/*
Package user defines the chat identity visible to all connected clients.

A User is created by the chat registry when a join is admitted and destroyed
when the owning session is removed; it never outlives its session.
*/
package user

// User is the public identity of a chat participant.
// Fields use JSON tags for serialization in WebSocket events and API responses.
type User struct {

	// ID is the server-generated opaque unique identifier for the user.
	ID string `json:"id"`

	// Username is the client-supplied display name, unique across all
	// currently registered users (case-sensitive exact match).
	Username string `json:"username"`
}

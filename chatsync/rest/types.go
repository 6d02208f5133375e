package rest

import (
	"fmt"

	"github.com/eoncord/chatsync-go/chatsync"
)

// Authentication types

// AuthRequest is the request body for login and signup.
type AuthRequest struct {
	Username string `json:"username"`
}

// User is the account returned by the auth endpoints.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
}

// Author returns the message author snapshot for u.
func (u User) Author() chatsync.Author {
	return chatsync.Author{ID: u.ID, DisplayName: u.Username, AvatarRef: u.Avatar}
}

// AuthResponse contains the token returned after successful authentication.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Message history types

// Page contains a page of messages with pagination info. Items are in
// chronological order; NextCursor is empty when no older messages remain.
type Page struct {
	Items      []chatsync.Message `json:"items"`
	NextCursor string             `json:"nextCursor,omitempty"`
	Total      int                `json:"total"`
}

// CreateMessageRequest is the request body for the request/response send
// path.
type CreateMessageRequest struct {
	ConversationID string                `json:"conversationId"`
	Content        string                `json:"content"`
	AuthorID       string                `json:"authorId"`
	Attachments    []chatsync.Attachment `json:"attachments,omitempty"`
}

// uploadResponse is returned by the upload endpoint.
type uploadResponse struct {
	URL string `json:"url"`
}

// errorResponse represents an API error response.
type errorResponse struct {
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// APIError represents a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (status %d)", e.Status)
}

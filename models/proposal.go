package models

// Proposal is owned by the document subsystem. This service only reads the
// fields it needs for ownership checks and notification templates.
type Proposal struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"userId"` // Foreign key to User model
	Title  string `json:"title"`
}

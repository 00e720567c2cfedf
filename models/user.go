package models

// User holds the proposal owner's contact details. Account management lives
// in the auth subsystem; this core only reads rows to address notifications.
type User struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	WhatsAppNumber string `json:"whatsappNumber,omitempty"`
}

package domain

import "time"

// ConsentStatus records whether outbound messaging to a client is permitted.
type ConsentStatus string

const (
	ConsentActive   ConsentStatus = "active"
	ConsentOptedOut ConsentStatus = "opted_out"
	ConsentArchived ConsentStatus = "archived"
	ConsentPending  ConsentStatus = "pending"
)

// CanMessage reports whether a client with this status may receive nudges.
func (s ConsentStatus) CanMessage() bool { return s == ConsentActive }

// BookingStatus enumerates the outcomes of a session booking.
type BookingStatus string

const (
	BookingCompleted BookingStatus = "completed"
	BookingNoShow    BookingStatus = "no_show"
	BookingCancelled BookingStatus = "cancelled"
	BookingScheduled BookingStatus = "scheduled"
)

// Client is a trainer's client as stored in the CRM tables.
type Client struct {
	ID            string        `json:"id" db:"id"`
	TrainerID     string        `json:"trainer_id" db:"trainer_id"`
	FirstName     string        `json:"first_name" db:"first_name"`
	LastName      string        `json:"last_name" db:"last_name"`
	Email         string        `json:"email" db:"email"`
	Phone         string        `json:"phone" db:"phone"`
	GHLContactID  string        `json:"ghl_contact_id" db:"ghl_contact_id"`
	ConsentStatus ConsentStatus `json:"consent_status" db:"consent_status"`
	Tags          []string      `json:"tags" db:"tags"`
}

// Booking is a single training session booking.
type Booking struct {
	ID          string        `json:"id" db:"id"`
	ClientID    string        `json:"client_id" db:"client_id"`
	ScheduledAt time.Time     `json:"scheduled_at" db:"scheduled_at"`
	Status      BookingStatus `json:"status" db:"status"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

// Message is a single message exchanged with a client.
type Message struct {
	ID        string    `json:"id" db:"id"`
	ClientID  string    `json:"client_id" db:"client_id"`
	Direction string    `json:"direction" db:"direction"` // "outbound" or "inbound"
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ClientFacts is the read-only snapshot the scorer works from. A fresh
// snapshot is collected for every run; nothing is cached between runs.
type ClientFacts struct {
	ClientID          string     `json:"client_id"`
	TrainerID         string     `json:"trainer_id"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	LastMessageSentAt *time.Time `json:"last_message_sent_at"`
	LastBookingAt     *time.Time `json:"last_booking_at"`
	BookingHistory    []Booking  `json:"booking_history"`
	MessageHistory    []Message  `json:"message_history"`
	Tags              []string   `json:"tags"`
}

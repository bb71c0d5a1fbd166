package models

import (
	"strings"
	"time"
)

// UnknownUser is shown when a user has neither a first nor a last name.
const UnknownUser = "Unknown User"

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	DisplayName string    `json:"displayName"`
	PhotoURL    string    `json:"photoUrl"`
	Bio         string    `json:"bio"`
	Skills      []string  `json:"skills"`
	Github      string    `json:"github"`
	Linkedin    string    `json:"linkedin"`
	Followers   []string  `json:"followers"`
	Following   []string  `json:"following"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Set only when a list is viewed by a session.
	IsFollowing bool `json:"isFollowing,omitempty"`
}

// GetID makes User usable in view state lists.
func (u User) GetID() string { return u.ID }

// DisplayName joins first and last name, falling back to UnknownUser.
func DisplayName(firstName, lastName string) string {
	name := strings.TrimSpace(strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName))
	if name == "" {
		return UnknownUser
	}
	return name
}

// UserName is the short form returned by batch name lookups.
type UserName struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DisplayName string `json:"displayName"`
}

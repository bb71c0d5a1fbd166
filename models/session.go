package models

import "time"

// Session is the signed-in identity the sync layer acts for. It is stored and
// loaded as one blob keyed by ID.
type Session struct {
	ID           string    `bson:"_id" json:"id"`
	Token        string    `bson:"token" json:"-"`
	RefreshToken string    `bson:"refreshToken" json:"-"`
	TokenExpiry  time.Time `bson:"tokenExpiry" json:"-"`
	UserID       string    `bson:"userId" json:"userId"`
	Email        string    `bson:"email" json:"email"`
	FirstName    string    `bson:"firstName" json:"firstName"`
	LastName     string    `bson:"lastName" json:"lastName"`
	DisplayName  string    `bson:"displayName" json:"displayName"`
	PhotoURL     string    `bson:"photoUrl" json:"photoUrl"`
	Following    []string  `bson:"following" json:"following"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

// Valid reports whether the session can authorize remote calls.
func (s *Session) Valid() bool {
	return s != nil && s.Token != "" && s.UserID != ""
}

// Follows reports whether the session user follows userID.
func (s *Session) Follows(userID string) bool {
	if s == nil {
		return false
	}
	for _, id := range s.Following {
		if id == userID {
			return true
		}
	}
	return false
}

package models

// ProfileUpdate is the editable part of a user profile.
type ProfileUpdate struct {
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Bio       string   `json:"bio"`
	Skills    []string `json:"skills"`
	Github    string   `json:"github"`
	Linkedin  string   `json:"linkedin"`
}

// RegisterRequest is what signup collects. Photo is an optional image upload.
type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Photo     []byte
}

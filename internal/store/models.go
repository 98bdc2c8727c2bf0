package store

import "time"

type User struct {
	ID                    string
	Email                 string
	Name                  string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	ResetToken            string
	ResetExpiresAt        *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Project struct {
	ID          string
	OwnerUserID string
	Name        string
	SiteURL     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Keyword struct {
	ID               string
	ProjectID        string
	Phrase           string
	Country          string
	Volume           int
	Position         int
	PreviousPosition int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

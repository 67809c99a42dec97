package models

import (
	"strings"

	"github.com/gosimple/unidecode"
)

type BookStatus string

const (
	BookStatusPending BookStatus = "pendiente"
	BookStatusReading BookStatus = "leyendo"
	BookStatusRead    BookStatus = "leido"
)

// Valid reports whether s is a known status.
func (s BookStatus) Valid() bool {
	switch s {
	case BookStatusPending, BookStatusReading, BookStatusRead:
		return true
	}
	return false
}

// CanTransitionTo enforces pendiente -> leyendo -> leido, forward only, with
// leido terminal. Skipping straight from pendiente to leido is allowed.
func (s BookStatus) CanTransitionTo(next BookStatus) bool {
	switch s {
	case BookStatusPending:
		return next == BookStatusReading || next == BookStatusRead
	case BookStatusReading:
		return next == BookStatusRead
	}
	return false
}

// Book belongs to exactly one club's reading list.
type Book struct {
	ID              string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ClubID          string     `gorm:"type:uuid;not null;index" json:"club_id"`
	Title           string     `gorm:"not null" json:"title"`
	Author          string     `json:"author"`
	NormalizedTitle string     `gorm:"index;not null" json:"-"`
	CoverURL        string     `gorm:"type:text" json:"cover_url,omitempty"`
	Status          BookStatus `gorm:"type:varchar(16);not null;default:'pendiente'" json:"status"`
	AddedBy         string     `gorm:"type:uuid;not null" json:"added_by"`

	Timestamps
}

// NormalizeTitle folds accents and case so "Cien Años" and "cien anos" collide.
func NormalizeTitle(title string) string {
	folded := strings.ToLower(unidecode.Unidecode(title))
	return strings.Join(strings.Fields(folded), " ")
}

package customer

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Titles accepted for a customer's name prefix.
var Titles = []string{"นาย", "นาง", "นางสาว", "เด็กหญิง", "เด็กชาย", "พระภิกษุ", "สามเณร"}

// Genders accepted for a customer.
var Genders = []string{"ชาย", "หญิง"}

// Customer is a patient registered with one laboratory. HN is assigned once
// at registration and never changes.
type Customer struct {
	ID        uuid.UUID  `json:"id"`
	LabID     uuid.UUID  `json:"lab_id"`
	HN        string     `json:"hn"`
	PID       string     `json:"pid" validate:"required,thai_pid"`
	Title     string     `json:"title,omitempty"`
	FirstName string     `json:"first_name" validate:"required"`
	LastName  string     `json:"last_name" validate:"required"`
	Gender    string     `json:"gender,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Address   string     `json:"address,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c *Customer) FullName() string {
	return strings.TrimSpace(c.Title + c.FirstName + " " + c.LastName)
}

// Age returns the customer's age in whole years at t, or -1 when the birth
// date is unknown.
func (c *Customer) Age(t time.Time) int {
	if c.BirthDate == nil {
		return -1
	}
	b := *c.BirthDate
	age := t.Year() - b.Year()
	if t.Month() < b.Month() || (t.Month() == b.Month() && t.Day() < b.Day()) {
		age--
	}
	return age
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

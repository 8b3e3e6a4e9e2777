package models

import (
	"errors"
	"strings"
	"time"
)

type Gender string

const (
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
	GenderOther       Gender = "other"
	GenderUnspecified Gender = "unspecified"
)

// BirthDateLayout is the wire format for UserInfo.BirthDate
const BirthDateLayout = "2006-01-02"

// UserInfo is supplied by the caller and never mutated by the pipeline
type UserInfo struct {
	BirthDate     time.Time `json:"birth_date"`
	BirthTime     string    `json:"birth_time,omitempty"`
	BirthLocation string    `json:"birth_location,omitempty"`
	Gender        Gender    `json:"gender"`
	Language      string    `json:"language"`
}

// Validate checks the fields the pipeline depends on
func (u UserInfo) Validate() error {
	if u.BirthDate.IsZero() {
		return errors.New("birth date is required")
	}
	if u.BirthDate.After(time.Now()) {
		return errors.New("birth date is in the future")
	}
	switch u.Gender {
	case "", GenderMale, GenderFemale, GenderOther, GenderUnspecified:
	default:
		return errors.New("unknown gender category")
	}
	return nil
}

// Lang returns the report language, defaulting to English
func (u UserInfo) Lang() string {
	lang := strings.TrimSpace(strings.ToLower(u.Language))
	if lang == "" {
		return "en"
	}
	return lang
}

// Age returns the completed years at now
func (u UserInfo) Age(now time.Time) int {
	if u.BirthDate.IsZero() {
		return 0
	}
	years := now.Year() - u.BirthDate.Year()
	if now.YearDay() < u.BirthDate.YearDay() {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

package models

import (
	"strings"
	"time"
)

// TripSettings is the generator input collected by the builder form.
type TripSettings struct {
	Destination     string   `json:"destination"`
	Cities          []string `json:"cities,omitempty"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	Travelers       int      `json:"travelers"`
	Budget          string   `json:"budget"`
	Theme           string   `json:"theme"`
	Attractions     []string `json:"attractions,omitempty"`
	SpecialRequests string   `json:"special_requests,omitempty"`
}

// Validate checks the fields the generator cannot work without and returns
// the parsed trip dates.
func (s TripSettings) Validate() (start, end time.Time, err error) {
	verr := &ValidationError{}
	if strings.TrimSpace(s.Destination) == "" {
		verr.Add("destination", "is required")
	}
	if strings.TrimSpace(s.Theme) == "" {
		verr.Add("theme", "is required")
	}
	if s.Travelers < 0 {
		verr.Add("travelers", "must not be negative")
	}

	start, startErr := parseRequiredDate(s.StartDate)
	if startErr != "" {
		verr.Add("start_date", startErr)
	}
	end, endErr := parseRequiredDate(s.EndDate)
	if endErr != "" {
		verr.Add("end_date", endErr)
	}
	if startErr == "" && endErr == "" && !end.After(start) {
		verr.Add("end_date", "must be after start_date")
	}

	if verr.HasErrors() {
		return time.Time{}, time.Time{}, verr
	}
	return start, end, nil
}

func parseRequiredDate(raw string) (time.Time, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, "is required"
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, "must be YYYY-MM-DD"
	}
	return t, ""
}

// Draft is a partially filled builder form kept between page loads.
type Draft struct {
	ID        string       `json:"id"`
	Settings  TripSettings `json:"settings"`
	UpdatedAt time.Time    `json:"updated_at"`
}

package models

import "time"

type Itinerary struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Destination   string         `json:"destination"`
	StartDate     string         `json:"start_date"`
	EndDate       string         `json:"end_date"`
	Duration      string         `json:"duration"`
	Travelers     int            `json:"travelers"`
	Budget        string         `json:"budget"`
	Theme         string         `json:"theme"`
	Status        string         `json:"status"` // draft, shared, feedback, approved, completed
	ShareToken    string         `json:"share_token,omitempty"`
	Flights       Flights        `json:"flights"`
	Accommodation Accommodation  `json:"accommodation"`
	Days          []ItineraryDay `json:"days"`
	Inclusions    []string       `json:"inclusions"`
	Exclusions    []string       `json:"exclusions"`
	Consultant    Consultant     `json:"consultant"`
	Comments      []Comment      `json:"comments"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Version       int64          `json:"version"`
}

type Flights struct {
	Departure string `json:"departure"`
	Return    string `json:"return"`
}

type Accommodation struct {
	Hotel  string `json:"hotel"`
	Nights int    `json:"nights"`
	Rating string `json:"rating"`
}

type Consultant struct {
	Name    string `json:"name" yaml:"name"`
	Email   string `json:"email" yaml:"email"`
	Phone   string `json:"phone" yaml:"phone"`
	Company string `json:"company" yaml:"company"`
	Logo    string `json:"logo,omitempty" yaml:"logo"`
}

// ItineraryDay is one calendar day of the trip. Days are owned by their
// itinerary and always replaced as a whole set.
type ItineraryDay struct {
	Day           int      `json:"day"`
	Date          string   `json:"date"`
	Title         string   `json:"title"`
	City          string   `json:"city"`
	Activities    []string `json:"activities"`
	Meals         string   `json:"meals"`
	Accommodation string   `json:"accommodation"`
	Images        []string `json:"images,omitempty"`
	Description   string   `json:"description,omitempty"`
}

// CommentByID returns the comment with the given id or nil.
func (it *Itinerary) CommentByID(id string) *Comment {
	for i := range it.Comments {
		if it.Comments[i].ID == id {
			return &it.Comments[i]
		}
	}
	return nil
}

// PendingComments counts comments still waiting for the consultant.
func (it *Itinerary) PendingComments() int {
	n := 0
	for _, c := range it.Comments {
		if c.Status == CommentPending {
			n++
		}
	}
	return n
}

// ItineraryPatch carries a partial update. Nil fields are left untouched.
// Status is not patchable; it only moves through workflow events.
type ItineraryPatch struct {
	Title         *string         `json:"title,omitempty"`
	Destination   *string         `json:"destination,omitempty"`
	StartDate     *string         `json:"start_date,omitempty"`
	EndDate       *string         `json:"end_date,omitempty"`
	Duration      *string         `json:"duration,omitempty"`
	Travelers     *int            `json:"travelers,omitempty"`
	Budget        *string         `json:"budget,omitempty"`
	Theme         *string         `json:"theme,omitempty"`
	Flights       *Flights        `json:"flights,omitempty"`
	Accommodation *Accommodation  `json:"accommodation,omitempty"`
	Days          *[]ItineraryDay `json:"days,omitempty"`
	Inclusions    *[]string       `json:"inclusions,omitempty"`
	Exclusions    *[]string       `json:"exclusions,omitempty"`
	Consultant    *Consultant     `json:"consultant,omitempty"`
}

// Apply merges the patch into it and reports whether the day set changed.
func (p ItineraryPatch) Apply(it *Itinerary) (daysChanged bool) {
	if p.Title != nil {
		it.Title = *p.Title
	}
	if p.Destination != nil {
		it.Destination = *p.Destination
	}
	if p.StartDate != nil {
		it.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		it.EndDate = *p.EndDate
	}
	if p.Duration != nil {
		it.Duration = *p.Duration
	}
	if p.Travelers != nil {
		it.Travelers = *p.Travelers
	}
	if p.Budget != nil {
		it.Budget = *p.Budget
	}
	if p.Theme != nil {
		it.Theme = *p.Theme
	}
	if p.Flights != nil {
		it.Flights = *p.Flights
	}
	if p.Accommodation != nil {
		it.Accommodation = *p.Accommodation
	}
	if p.Inclusions != nil {
		it.Inclusions = cloneSlice(*p.Inclusions)
	}
	if p.Exclusions != nil {
		it.Exclusions = cloneSlice(*p.Exclusions)
	}
	if p.Consultant != nil {
		it.Consultant = *p.Consultant
	}
	if p.Days != nil {
		it.Days = cloneSlice(*p.Days)
		daysChanged = true
	}
	return daysChanged
}

// cloneSlice copies src into a non-nil slice so an empty list stays [] in JSON.
func cloneSlice[T any](src []T) []T {
	out := make([]T, len(src))
	copy(out, src)
	return out
}

// IsEmpty reports whether the patch changes nothing.
func (p ItineraryPatch) IsEmpty() bool {
	return p == ItineraryPatch{}
}

// Package generator turns TripSettings into a complete draft itinerary.
// The default implementation is a deterministic template filler; the
// Generator interface is where a real planning backend would plug in.
package generator

import (
	"fmt"
	"math"
	"strings"
	"time"

	"itinera/internal/models"

	"github.com/google/uuid"
)

// Generator synthesizes a draft itinerary from builder settings.
type Generator interface {
	Generate(settings models.TripSettings) (*models.Itinerary, error)
}

// TemplateGenerator fills a fixed template with the trip's dates and places.
type TemplateGenerator struct {
	content Content
	now     func() time.Time
	newID   func() string
}

func NewTemplateGenerator(content Content) *TemplateGenerator {
	return &TemplateGenerator{
		content: content,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// DayCount returns ceil((end-start)/24h).
func DayCount(start, end time.Time) int {
	return int(math.Ceil(end.Sub(start).Hours() / 24))
}

// DurationLabel formats the "N Days / N-1 Nights" label shown on documents.
func DurationLabel(dayCount int) string {
	return fmt.Sprintf("%d Days / %d Nights", dayCount, max(dayCount-1, 0))
}

// Generate validates settings and builds the itinerary. It has no side
// effects; the caller decides whether to persist the result.
func (g *TemplateGenerator) Generate(settings models.TripSettings) (*models.Itinerary, error) {
	start, end, err := settings.Validate()
	if err != nil {
		return nil, err
	}

	destination := strings.TrimSpace(settings.Destination)
	theme := strings.TrimSpace(settings.Theme)
	dayCount := DayCount(start, end)
	nights := dayCount - 1

	travelers := settings.Travelers
	if travelers == 0 {
		travelers = models.DefaultTravelers
	}

	now := g.now()
	it := &models.Itinerary{
		ID:          g.newID(),
		Title:       fmt.Sprintf("%s %s Experience", destination, theme),
		Destination: destination,
		StartDate:   settings.StartDate,
		EndDate:     settings.EndDate,
		Duration:    DurationLabel(dayCount),
		Travelers:   travelers,
		Budget:      settings.Budget,
		Theme:       theme,
		Status:      models.StatusDraft,
		Flights: models.Flights{
			Departure: fmt.Sprintf("%s → %s, %s (%s)", g.content.Origin, destination, settings.StartDate, g.content.Airline),
			Return:    fmt.Sprintf("%s → %s, %s (%s)", destination, g.content.Origin, settings.EndDate, g.content.Airline),
		},
		Accommodation: models.Accommodation{
			Hotel:  fmt.Sprintf("%s %s", g.content.HotelName, destination),
			Nights: nights,
			Rating: g.content.HotelRating,
		},
		Days:       g.days(destination, settings.Cities, start, dayCount),
		Inclusions: g.inclusions(nights),
		Exclusions: append([]string(nil), g.content.Exclusions...),
		Consultant: g.content.Consultant,
		Comments:   []models.Comment{},
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	return it, nil
}

func (g *TemplateGenerator) days(destination string, cities []string, start time.Time, count int) []models.ItineraryDay {
	stops := nonEmpty(cities)
	days := make([]models.ItineraryDay, 0, count)
	for i := 0; i < count; i++ {
		n := i + 1
		city := destination
		// interior days tour the extra cities in order when the client listed any
		if len(stops) > 0 && n > 1 && n < count {
			city = stops[(n-2)%len(stops)]
		}

		title := fmt.Sprintf("%s Exploration", city)
		switch {
		case n == 1:
			title = g.content.ArrivalTitle
		case n == count:
			title = g.content.DepartureTitle
		}

		meals := g.content.DailyMeals
		if n == 1 {
			meals = g.content.FirstDayMeals
		}

		days = append(days, models.ItineraryDay{
			Day:           n,
			Date:          start.AddDate(0, 0, i).Format(models.DateLayout),
			Title:         title,
			City:          city,
			Activities:    append([]string(nil), g.content.Activities...),
			Meals:         meals,
			Accommodation: fmt.Sprintf("%s %s", g.content.DayAccommodation, city),
			Images:        g.imagesFor(i),
			Description:   fmt.Sprintf("Day %d offers an immersive experience in %s with carefully curated activities.", n, city),
		})
	}
	return days
}

// imagesFor returns a window of the image pool that rotates by one per day.
func (g *TemplateGenerator) imagesFor(dayIndex int) []string {
	pool := g.content.Images
	if len(pool) == 0 || g.content.ImagesPerDay <= 0 {
		return nil
	}
	out := make([]string, 0, g.content.ImagesPerDay)
	for k := 0; k < g.content.ImagesPerDay; k++ {
		out = append(out, pool[(dayIndex+k)%len(pool)])
	}
	return out
}

func (g *TemplateGenerator) inclusions(nights int) []string {
	out := make([]string, 0, len(g.content.Inclusions))
	for _, inc := range g.content.Inclusions {
		if strings.Contains(inc, "%d") {
			inc = fmt.Sprintf(inc, nights)
		}
		out = append(out, inc)
	}
	return out
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

package document

import (
	"fmt"
	"strings"
	"time"

	"itinera/internal/models"
)

// displayLayout формат дат в документе
const displayLayout = "02 Jan 2006"

// Options tune a single render.
type Options struct {
	// ShareURL is printed with a QR code when set.
	ShareURL    string
	GeneratedAt time.Time
}

type Field struct {
	Label string
	Value string
}

// Section is a titled block of label/value fields and bullet items.
type Section struct {
	Key    string
	Title  string
	Fields []Field
	Items  []string
	Text   string
}

type DayBlock struct {
	Number      int
	Date        string
	City        string
	Title       string
	Description string
	Activities  []string
	Meals       string
	Stay        string
	Images      []string
}

// Document is the render-ready view of an itinerary. It is rebuilt from the
// itinerary on every export and never stored.
type Document struct {
	Title       string
	Subtitle    string
	Intro       string
	Status      string
	HeroImage   string
	Sections    []Section
	Summary     []string
	Days        []DayBlock
	Consultant  Section
	ShareURL    string
	GeneratedAt time.Time
}

// Build assembles the document model. It never fails: missing values are
// rendered as empty fields.
func Build(it *models.Itinerary, opts Options) *Document {
	if it == nil {
		return &Document{GeneratedAt: generatedAt(opts)}
	}

	doc := &Document{
		Title:       it.Title,
		Subtitle:    fmt.Sprintf("%s's Best Escape", it.Destination),
		Intro:       intro(it),
		Status:      it.Status,
		ShareURL:    opts.ShareURL,
		GeneratedAt: generatedAt(opts),
	}

	doc.Sections = append(doc.Sections,
		Section{
			Key:   models.SectionGeneral,
			Title: "Trip Overview",
			Fields: []Field{
				{Label: "Destination", Value: it.Destination},
				{Label: "Start Date", Value: displayDate(it.StartDate)},
				{Label: "End Date", Value: displayDate(it.EndDate)},
				{Label: "Duration", Value: it.Duration},
				{Label: "Travelers", Value: fmt.Sprintf("%d", it.Travelers)},
				{Label: "Budget", Value: it.Budget},
				{Label: "Theme", Value: it.Theme},
			},
		},
		Section{
			Key:   models.SectionFlights,
			Title: "Flights",
			Fields: []Field{
				{Label: "Onward Flight", Value: it.Flights.Departure},
				{Label: "Return Flight", Value: it.Flights.Return},
			},
		},
		Section{
			Key:   models.SectionAccommodation,
			Title: "Accommodation",
			Fields: []Field{
				{Label: "Hotel", Value: it.Accommodation.Hotel},
				{Label: "Nights", Value: fmt.Sprintf("%d", it.Accommodation.Nights)},
				{Label: "Rating", Value: it.Accommodation.Rating},
			},
		},
		Section{
			Key:   models.SectionInclusions,
			Title: "Inclusions",
			Items: nonBlank(it.Inclusions),
			Text:  fmt.Sprintf("Includes %d breakfasts", it.Accommodation.Nights),
		},
		Section{
			Key:   "exclusions",
			Title: "Exclusions",
			Items: nonBlank(it.Exclusions),
		},
	)

	for _, d := range it.Days {
		block := DayBlock{
			Number:      d.Day,
			Date:        displayDate(d.Date),
			City:        d.City,
			Title:       d.Title,
			Description: d.Description,
			Activities:  nonBlank(d.Activities),
			Meals:       d.Meals,
			Stay:        d.Accommodation,
			Images:      nonBlank(d.Images),
		}
		if block.Description == "" && len(block.Activities) > 0 {
			block.Description = fmt.Sprintf("Discover %s's iconic landmarks and hidden gems. %s.",
				d.City, strings.Join(block.Activities, ". "))
		}
		if doc.HeroImage == "" && len(block.Images) > 0 {
			doc.HeroImage = block.Images[0]
		}
		doc.Days = append(doc.Days, block)
		doc.Summary = append(doc.Summary, fmt.Sprintf("Day %d: %s", d.Day, d.Title))
	}

	doc.Consultant = Section{
		Key:   "consultant",
		Title: "Your Travel Consultant",
		Fields: []Field{
			{Label: "Name", Value: it.Consultant.Name},
			{Label: "Company", Value: it.Consultant.Company},
			{Label: "Phone", Value: it.Consultant.Phone},
			{Label: "Email", Value: it.Consultant.Email},
		},
	}

	return doc
}

func intro(it *models.Itinerary) string {
	duration := strings.ToLower(it.Duration)
	if duration == "" {
		duration = "trip"
	}
	return fmt.Sprintf("Explore the best of %s with this %s. Experience its rich culture, stunning landscapes and historical landmarks.",
		it.Destination, duration)
}

func displayDate(raw string) string {
	t, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return raw
	}
	return t.Format(displayLayout)
}

func generatedAt(opts Options) time.Time {
	if opts.GeneratedAt.IsZero() {
		return time.Now().UTC()
	}
	return opts.GeneratedAt
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

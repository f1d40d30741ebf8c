package generator

import (
	"fmt"
	"os"

	"itinera/internal/models"

	"gopkg.in/yaml.v2"
)

// Content is the sample text the template generator fills itineraries with.
// It can be overridden from a YAML file so agencies can rebrand the output.
type Content struct {
	Origin           string            `yaml:"origin"`
	Airline          string            `yaml:"airline"`
	Activities       []string          `yaml:"activities"`
	Images           []string          `yaml:"images"`
	ImagesPerDay     int               `yaml:"images_per_day"`
	ArrivalTitle     string            `yaml:"arrival_title"`
	DepartureTitle   string            `yaml:"departure_title"`
	FirstDayMeals    string            `yaml:"first_day_meals"`
	DailyMeals       string            `yaml:"daily_meals"`
	HotelName        string            `yaml:"hotel_name"`
	HotelRating      string            `yaml:"hotel_rating"`
	DayAccommodation string            `yaml:"day_accommodation"`
	Inclusions       []string          `yaml:"inclusions"`
	Exclusions       []string          `yaml:"exclusions"`
	Consultant       models.Consultant `yaml:"consultant"`
}

// DefaultContent returns the built-in template content.
func DefaultContent() Content {
	return Content{
		Origin:  "NYC",
		Airline: "AI Selected Premium Airline",
		Activities: []string{
			"Morning city tour and local markets",
			"Visit iconic landmarks and attractions",
			"Traditional cultural experience",
			"Evening leisure time and local cuisine",
		},
		Images: []string{
			"https://images.unsplash.com/photo-1506905925346-21bda4d32df4?w=800&h=400&fit=crop",
			"https://images.unsplash.com/photo-1564507592333-c60657eea523?w=800&h=400&fit=crop",
			"https://images.unsplash.com/photo-1520637836862-4d197d17c36a?w=800&h=400&fit=crop",
		},
		ImagesPerDay:     2,
		ArrivalTitle:     "Arrival & Orientation",
		DepartureTitle:   "Departure",
		FirstDayMeals:    "Welcome dinner included",
		DailyMeals:       "Breakfast included",
		HotelName:        "Luxury Resort & Spa",
		HotelRating:      "5-star luxury resort with spa facilities",
		DayAccommodation: "Premium Hotel in",
		Inclusions: []string{
			"%d nights luxury accommodation",
			"Daily gourmet breakfast",
			"Professional English-speaking guide",
			"All transportation in premium vehicles",
			"Entrance fees to all mentioned attractions",
			"Cultural experiences and activities",
			"Welcome dinner on arrival",
			"24/7 concierge service",
		},
		Exclusions: []string{
			"International flights",
			"Travel insurance",
			"Personal expenses and souvenirs",
			"Lunches and dinners not mentioned",
			"Optional activities and excursions",
			"Spa treatments and wellness services",
			"Alcoholic beverages",
		},
		Consultant: models.Consultant{
			Name:    "Sarah Mitchell",
			Email:   "sarah@travelbuilder.com",
			Phone:   "+1 (555) 123-4567",
			Company: "TravelBuilder Pro",
			Logo:    "https://images.unsplash.com/photo-1560250097-0b93528c311a?w=200&h=200&fit=crop",
		},
	}
}

// LoadContent reads a YAML content file. Fields missing from the file keep
// their default values.
func LoadContent(path string) (Content, error) {
	content := DefaultContent()
	if path == "" {
		return content, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return content, fmt.Errorf("read content file: %w", err)
	}

	var override Content
	if err := yaml.Unmarshal(data, &override); err != nil {
		return content, fmt.Errorf("parse content file: %w", err)
	}

	content.merge(override)
	if err := content.Validate(); err != nil {
		return content, err
	}
	return content, nil
}

func (c *Content) merge(o Content) {
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&c.Origin, o.Origin)
	setString(&c.Airline, o.Airline)
	setString(&c.ArrivalTitle, o.ArrivalTitle)
	setString(&c.DepartureTitle, o.DepartureTitle)
	setString(&c.FirstDayMeals, o.FirstDayMeals)
	setString(&c.DailyMeals, o.DailyMeals)
	setString(&c.HotelName, o.HotelName)
	setString(&c.HotelRating, o.HotelRating)
	setString(&c.DayAccommodation, o.DayAccommodation)

	if len(o.Activities) > 0 {
		c.Activities = o.Activities
	}
	if len(o.Images) > 0 {
		c.Images = o.Images
	}
	if o.ImagesPerDay > 0 {
		c.ImagesPerDay = o.ImagesPerDay
	}
	if len(o.Inclusions) > 0 {
		c.Inclusions = o.Inclusions
	}
	if len(o.Exclusions) > 0 {
		c.Exclusions = o.Exclusions
	}
	if o.Consultant.Name != "" {
		c.Consultant = o.Consultant
	}
}

// Validate rejects content the generator cannot use.
func (c Content) Validate() error {
	if len(c.Activities) == 0 {
		return fmt.Errorf("content: activities must not be empty")
	}
	if c.ImagesPerDay > len(c.Images) {
		return fmt.Errorf("content: images_per_day=%d exceeds image pool of %d", c.ImagesPerDay, len(c.Images))
	}
	return nil
}

package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/teesmad/findmyspot/internal/spot"
)

// Availability values offered by the interactive form.
var AvailabilityOptions = []string{"Available", "Limited", "Full", "Closed"}

// SpotInput holds raw form values. Numbers stay strings until Spot parses
// them.
type SpotInput struct {
	Name         string
	Latitude     string
	Longitude    string
	Availability string
	Price        string
	ImageBase64  string
}

// InputFromSpot pre-fills a form from an existing spot.
func InputFromSpot(s spot.ParkingSpot) SpotInput {
	return SpotInput{
		Name:         s.Name,
		Latitude:     strconv.FormatFloat(s.Latitude, 'f', -1, 64),
		Longitude:    strconv.FormatFloat(s.Longitude, 'f', -1, 64),
		Availability: s.Availability,
		Price:        strconv.FormatFloat(s.PricePerHour, 'f', -1, 64),
		ImageBase64:  s.ImageBase64,
	}
}

// Spot builds a validated spot from the input. An empty id gets a fresh one.
func (in SpotInput) Spot(id string) (spot.ParkingSpot, error) {
	lat, err := parseNumber(spot.KeyLatitude, in.Latitude)
	if err != nil {
		return spot.ParkingSpot{}, err
	}
	lon, err := parseNumber(spot.KeyLongitude, in.Longitude)
	if err != nil {
		return spot.ParkingSpot{}, err
	}
	price, err := parseNumber(spot.KeyPricePerHour, in.Price)
	if err != nil {
		return spot.ParkingSpot{}, err
	}

	s := spot.New(strings.TrimSpace(in.Name), lat, lon, in.Availability, price, in.ImageBase64)
	if id != "" {
		s.ID = id
	}
	if err := s.Validate(); err != nil {
		return spot.ParkingSpot{}, err
	}
	return s, nil
}

func parseNumber(key, v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number (got %q)", spot.ErrInvalid, key, v)
	}
	return f, nil
}

func validateName(v string) error {
	if strings.TrimSpace(v) == "" {
		return errors.New("name is required")
	}
	return nil
}

func validateRange(key string, lo, hi float64) func(string) error {
	return func(v string) error {
		f, err := parseNumber(key, v)
		if err != nil {
			return errors.New("must be a number")
		}
		if f < lo || f > hi {
			return fmt.Errorf("must be between %v and %v", lo, hi)
		}
		return nil
	}
}

func validatePrice(v string) error {
	f, err := parseNumber(spot.KeyPricePerHour, v)
	if err != nil {
		return errors.New("must be a number")
	}
	if f < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

// SpotForm builds the interactive spot editor bound to in.
func SpotForm(in *SpotInput) *huh.Form {
	if in.Availability == "" {
		in.Availability = spot.DefaultAvailability
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Value(&in.Name).
				Validate(validateName),
			huh.NewInput().
				Title("Latitude").
				Placeholder("54.5742").
				Value(&in.Latitude).
				Validate(validateRange(spot.KeyLatitude, -90, 90)),
			huh.NewInput().
				Title("Longitude").
				Placeholder("-1.2350").
				Value(&in.Longitude).
				Validate(validateRange(spot.KeyLongitude, -180, 180)),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Availability").
				Options(huh.NewOptions(AvailabilityOptions...)...).
				Value(&in.Availability),
			huh.NewInput().
				Title("Price per hour").
				Placeholder("0").
				Value(&in.Price).
				Validate(validatePrice),
		),
	)
}

// RunSpotForm shows the form and returns the resulting spot.
func RunSpotForm(in *SpotInput, id string) (spot.ParkingSpot, error) {
	if !IsTerminal() {
		return spot.ParkingSpot{}, errors.New("interactive mode requires a terminal")
	}
	if err := SpotForm(in).Run(); err != nil {
		return spot.ParkingSpot{}, fmt.Errorf("form cancelled: %w", err)
	}
	return in.Spot(id)
}

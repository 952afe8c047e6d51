package spot

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Wire keys of a remote spot document.
const (
	KeyName         = "name"
	KeyLatitude     = "latitude"
	KeyLongitude    = "longitude"
	KeyAvailability = "availability"
	KeyPricePerHour = "price_per_hour"
	KeyImageBase64  = "image_base64"
)

// DefaultAvailability is used for new spots built from user input.
const DefaultAvailability = "Available"

// ErrInvalid is returned when a record fails field validation.
var ErrInvalid = errors.New("invalid parking spot")

// Fields is the field set of a remote document, without its key.
type Fields map[string]any

// RawDocument is a remote document as delivered by a remote store.
type RawDocument struct {
	ID     string
	Fields Fields
}

// ParkingSpot is a single parking location.
type ParkingSpot struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	Latitude     float64 `json:"latitude" yaml:"latitude"`
	Longitude    float64 `json:"longitude" yaml:"longitude"`
	Availability string  `json:"availability" yaml:"availability"`
	PricePerHour float64 `json:"price_per_hour" yaml:"price_per_hour"`
	ImageBase64  string  `json:"image_base64,omitempty" yaml:"image_base64,omitempty"`
}

// New builds a spot from user input with a freshly generated id.
// An empty availability defaults to DefaultAvailability.
func New(name string, lat, lon float64, availability string, pricePerHour float64, imageBase64 string) ParkingSpot {
	if strings.TrimSpace(availability) == "" {
		availability = DefaultAvailability
	}
	return ParkingSpot{
		ID:           uuid.NewString(),
		Name:         name,
		Latitude:     lat,
		Longitude:    lon,
		Availability: availability,
		PricePerHour: pricePerHour,
		ImageBase64:  imageBase64,
	}
}

// Validate checks that the spot has valid field values.
func (s *ParkingSpot) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalid, KeyName)
	}
	if !finite(s.Latitude) || s.Latitude < -90 || s.Latitude > 90 {
		return fmt.Errorf("%w: %s must be between -90 and 90 (got %v)", ErrInvalid, KeyLatitude, s.Latitude)
	}
	if !finite(s.Longitude) || s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("%w: %s must be between -180 and 180 (got %v)", ErrInvalid, KeyLongitude, s.Longitude)
	}
	if strings.TrimSpace(s.Availability) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalid, KeyAvailability)
	}
	if !finite(s.PricePerHour) || s.PricePerHour < 0 {
		return fmt.Errorf("%w: %s must be a non-negative number (got %v)", ErrInvalid, KeyPricePerHour, s.PricePerHour)
	}
	return nil
}

// Validate converts a raw remote document into a ParkingSpot.
//
// Every required field must be present with the right type; nothing is
// defaulted. The returned error wraps ErrInvalid.
func Validate(raw RawDocument) (ParkingSpot, error) {
	var s ParkingSpot
	var ok bool

	s.ID = raw.ID
	if s.Name, ok = stringField(raw.Fields, KeyName); !ok {
		return ParkingSpot{}, missing(raw.ID, KeyName)
	}
	if s.Latitude, ok = numberField(raw.Fields, KeyLatitude); !ok {
		return ParkingSpot{}, missing(raw.ID, KeyLatitude)
	}
	if s.Longitude, ok = numberField(raw.Fields, KeyLongitude); !ok {
		return ParkingSpot{}, missing(raw.ID, KeyLongitude)
	}
	if s.Availability, ok = stringField(raw.Fields, KeyAvailability); !ok {
		return ParkingSpot{}, missing(raw.ID, KeyAvailability)
	}
	if s.PricePerHour, ok = numberField(raw.Fields, KeyPricePerHour); !ok {
		return ParkingSpot{}, missing(raw.ID, KeyPricePerHour)
	}
	// Optional; a non-string image is treated as no image.
	s.ImageBase64, _ = stringField(raw.Fields, KeyImageBase64)

	if err := s.Validate(); err != nil {
		return ParkingSpot{}, fmt.Errorf("document %q: %w", raw.ID, err)
	}
	return s, nil
}

// Fields returns the wire field set of the spot.
func (s ParkingSpot) Fields() Fields {
	f := Fields{
		KeyName:         s.Name,
		KeyLatitude:     s.Latitude,
		KeyLongitude:    s.Longitude,
		KeyAvailability: s.Availability,
		KeyPricePerHour: s.PricePerHour,
	}
	if s.ImageBase64 != "" {
		f[KeyImageBase64] = s.ImageBase64
	}
	return f
}

// Document returns the spot as a remote document.
func (s ParkingSpot) Document() RawDocument {
	return RawDocument{ID: s.ID, Fields: s.Fields()}
}

// HasImage reports whether the spot carries an image payload.
func (s ParkingSpot) HasImage() bool {
	return s.ImageBase64 != ""
}

func missing(id, key string) error {
	return fmt.Errorf("document %q: %w: %s is required", id, ErrInvalid, key)
}

func stringField(f Fields, key string) (string, bool) {
	v, ok := f[key]
	if !ok || v == nil {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// numberField accepts any numeric representation a driver or decoder may
// hand back and normalizes it to float64.
func numberField(f Fields, key string) (float64, bool) {
	v, ok := f[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		x, err := n.Float64()
		return x, err == nil
	default:
		return 0, false
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

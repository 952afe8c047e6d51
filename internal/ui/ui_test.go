package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/teesmad/findmyspot/internal/spot"
)

func init() {
	DisableColor()
}

func TestRender_PlainWithoutColor(t *testing.T) {
	if got := RenderPass("ok"); got != "ok" {
		t.Errorf("RenderPass = %q, want plain text", got)
	}
	if got := RenderState("ready"); got != "ready" {
		t.Errorf("RenderState = %q", got)
	}
}

func TestSpotTable(t *testing.T) {
	spots := []spot.ParkingSpot{
		{ID: "a", Name: "Market Street", Latitude: 54.5742, Longitude: -1.235, Availability: "Available", PricePerHour: 2.5},
		{ID: "b", Name: "Station", Latitude: 54.58, Longitude: -1.24, Availability: "Full", PricePerHour: 0},
	}

	out := SpotTable(spots, nil)
	for _, want := range []string{"ID", "NAME", "Market Street", "Station", "2.50", "free", "54.57420"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "DIST") {
		t.Error("distance column without origin")
	}

	out = SpotTable(spots, &Origin{Lat: 54.5742, Lon: -1.235})
	if !strings.Contains(out, "DIST") || !strings.Contains(out, "0 m") {
		t.Errorf("expected distance column:\n%s", out)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{FormatPrice(0), "free"},
		{FormatPrice(1.5), "1.50"},
		{FormatDistance(0.25), "250 m"},
		{FormatDistance(12.34), "12.3 km"},
		{FormatBytes(512), "512 bytes"},
		{FormatBytes(2048), "2.0 KB"},
		{FormatBytes(3 * 1024 * 1024), "3.0 MB"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestSpotInput_Spot(t *testing.T) {
	in := SpotInput{Name: " Lot A ", Latitude: "54.5", Longitude: "-1.2", Price: "2"}

	s, err := in.Spot("")
	if err != nil {
		t.Fatalf("Spot failed: %v", err)
	}
	if s.ID == "" || s.Name != "Lot A" || s.Availability != spot.DefaultAvailability || s.PricePerHour != 2 {
		t.Errorf("unexpected spot: %+v", s)
	}

	s, err = in.Spot("fixed")
	if err != nil || s.ID != "fixed" {
		t.Errorf("expected id fixed, got %+v, %v", s, err)
	}

	bad := []SpotInput{
		{Name: "A", Latitude: "north", Longitude: "0", Price: "1"},
		{Name: "A", Latitude: "95", Longitude: "0", Price: "1"},
		{Name: "", Latitude: "1", Longitude: "0", Price: "1"},
		{Name: "A", Latitude: "1", Longitude: "0", Price: "-1"},
	}
	for _, in := range bad {
		if _, err := in.Spot(""); !errors.Is(err, spot.ErrInvalid) {
			t.Errorf("%+v: expected ErrInvalid, got %v", in, err)
		}
	}
}

func TestInputFromSpot(t *testing.T) {
	s := spot.ParkingSpot{ID: "a", Name: "A", Latitude: 54.5, Longitude: -1.25, Availability: "Full", PricePerHour: 3}

	got, err := InputFromSpot(s).Spot("a")
	if err != nil {
		t.Fatalf("Spot failed: %v", err)
	}
	if got != s {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestFormValidators(t *testing.T) {
	if validateName("  ") == nil {
		t.Error("blank name should fail")
	}
	lat := validateRange(spot.KeyLatitude, -90, 90)
	if lat("45") != nil || lat("91") == nil || lat("x") == nil {
		t.Error("latitude validator")
	}
	if validatePrice("0") != nil || validatePrice("-0.5") == nil {
		t.Error("price validator")
	}
}

func TestSpotForm_DefaultsAvailability(t *testing.T) {
	in := &SpotInput{}
	if SpotForm(in) == nil {
		t.Fatal("expected form")
	}
	if in.Availability != spot.DefaultAvailability {
		t.Errorf("expected default availability, got %q", in.Availability)
	}
}

package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/teesmad/findmyspot/internal/spot"
)

// Origin is a reference point for distance columns.
type Origin struct {
	Lat, Lon float64
}

// SpotTable renders spots as a bordered table. With an origin, a distance
// column is added.
func SpotTable(spots []spot.ParkingSpot, origin *Origin) string {
	headers := []string{"ID", "NAME", "AVAILABILITY", "PRICE/H", "LAT", "LON"}
	if origin != nil {
		headers = append(headers, "DIST")
	}

	rows := make([][]string, 0, len(spots))
	for _, s := range spots {
		row := []string{
			s.ID,
			s.Name,
			s.Availability,
			FormatPrice(s.PricePerHour),
			fmt.Sprintf("%.5f", s.Latitude),
			fmt.Sprintf("%.5f", s.Longitude),
		}
		if origin != nil {
			row = append(row, FormatDistance(s.DistanceTo(origin.Lat, origin.Lon)))
		}
		rows = append(rows, row)
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(MutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return style.Bold(true)
			}
			if col == 2 && row >= 0 && row < len(spots) {
				return style.Inherit(availabilityStyle(spots[row].Availability))
			}
			return style
		}).
		String()
}

func availabilityStyle(a string) lipgloss.Style {
	switch a {
	case "Available":
		return PassStyle
	case "Full", "Closed":
		return FailStyle
	default:
		return WarnStyle
	}
}

// FormatPrice formats an hourly price.
func FormatPrice(p float64) string {
	if p == 0 {
		return "free"
	}
	return fmt.Sprintf("%.2f", p)
}

// FormatDistance formats a distance in kilometres.
func FormatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%.0f m", km*1000)
	}
	return fmt.Sprintf("%.1f km", km)
}

// FormatBytes formats a file size the way status output shows it.
func FormatBytes(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teesmad/findmyspot/internal/registry"
	"github.com/teesmad/findmyspot/internal/spot"
	"github.com/teesmad/findmyspot/internal/spotsync"
	"github.com/teesmad/findmyspot/internal/ui"
)

func newSpotsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "spots",
		GroupID: "spots",
		Short:   "List, add, update and delete parking spots",
	}
	cmd.AddCommand(
		newSpotsListCmd(a),
		newSpotsGetCmd(a),
		newSpotsAddCmd(a),
		newSpotsUpdateCmd(a),
		newSpotsDeleteCmd(a),
	)
	return cmd
}

// warnf prints a warning line to stderr.
func warnf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", ui.RenderWarn("⚠"), fmt.Sprintf(format, args...))
}

// snapshot returns the current spots: from the cache alone when offline,
// otherwise after one resync (falling back to the cache if the remote store
// is unreachable).
func (a *app) snapshot(cmd *cobra.Command, offline bool) (*registry.Registry, func(), error) {
	ctx := cmd.Context()

	e, err := a.openEngine(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = e.Close() }

	if offline {
		spots, err := e.cache.GetAllContext(ctx)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("failed to read cache: %w", err)
		}
		reg := registry.New()
		reg.Publish(spots)
		return reg, func() { reg.Close(); closeFn() }, nil
	}

	if err := e.start(ctx, func(err error) {
		warnf(cmd, "Remote store unavailable, showing cached spots: %v", err)
	}); err != nil {
		closeFn()
		return nil, nil, err
	}
	return e.syncer.Registry(), closeFn, nil
}

func newSpotsListCmd(a *app) *cobra.Command {
	var (
		near    string
		radius  float64
		offline bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List spots",
		Long: `List all spots, or the spots near a point ordered by distance.

Examples:
  fms spots list
  fms spots list --near 54.5742,-1.2350 --radius 2
  fms spots list --offline --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var origin *ui.Origin
			if near != "" {
				lat, lon, err := parseLatLon(near)
				if err != nil {
					return err
				}
				origin = &ui.Origin{Lat: lat, Lon: lon}
			}

			reg, done, err := a.snapshot(cmd, offline)
			if err != nil {
				return err
			}
			defer done()

			spots := reg.Current()
			if origin != nil {
				spots = reg.Nearby(origin.Lat, origin.Lon, radius)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), spots)
			}
			if len(spots) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No spots found")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.SpotTable(spots, origin))
			return nil
		},
	}

	cmd.Flags().StringVar(&near, "near", "", "Order by distance from LAT,LON")
	cmd.Flags().Float64Var(&radius, "radius", 0, "With --near, only spots within this many km")
	cmd.Flags().BoolVar(&offline, "offline", false, "Read the local cache only")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newSpotsGetCmd(a *app) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Show one spot as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, done, err := a.snapshot(cmd, offline)
			if err != nil {
				return err
			}
			defer done()

			s, ok := reg.Lookup(args[0])
			if !ok {
				return fmt.Errorf("spot %s not found", args[0])
			}
			return writeJSON(cmd.OutOrStdout(), s)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Read the local cache only")
	return cmd
}

// spotFlags are the field flags shared by add and update.
type spotFlags struct {
	id           string
	name         string
	lat          string
	lon          string
	availability string
	price        string
	imageFile    string
	interactive  bool
}

func (f *spotFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.name, "name", "", "Spot name")
	fl.StringVar(&f.lat, "lat", "", "Latitude")
	fl.StringVar(&f.lon, "lon", "", "Longitude")
	fl.StringVar(&f.availability, "availability", "", "Availability (default: Available)")
	fl.StringVar(&f.price, "price", "", "Price per hour")
	fl.StringVar(&f.imageFile, "image", "", "Image file to attach (stored base64)")
	fl.BoolVarP(&f.interactive, "interactive", "i", false, "Edit the spot in a form")
}

// apply overlays the flags the user set onto in.
func (f *spotFlags) apply(cmd *cobra.Command, in *ui.SpotInput) error {
	fl := cmd.Flags()
	if fl.Changed("name") {
		in.Name = f.name
	}
	if fl.Changed("lat") {
		in.Latitude = f.lat
	}
	if fl.Changed("lon") {
		in.Longitude = f.lon
	}
	if fl.Changed("availability") {
		in.Availability = f.availability
	}
	if fl.Changed("price") {
		in.Price = f.price
	}
	if f.imageFile != "" {
		// #nosec G304 - controlled path from CLI
		data, err := os.ReadFile(f.imageFile)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		in.ImageBase64 = base64.StdEncoding.EncodeToString(data)
	}
	return nil
}

// build turns the input into a spot, through the form when requested.
func (f *spotFlags) build(in *ui.SpotInput, id string) (spot.ParkingSpot, error) {
	if f.interactive {
		return ui.RunSpotForm(in, id)
	}
	return in.Spot(id)
}

func newSpotsAddCmd(a *app) *cobra.Command {
	f := &spotFlags{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a spot",
		Long: `Add a spot. The remote store is written first; the spot is in the local
cache when the command returns.

Examples:
  fms spots add --name "Market Street" --lat 54.5742 --lon -1.2350 --price 2.5
  fms spots add -i`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := &ui.SpotInput{}
			if err := f.apply(cmd, in); err != nil {
				return err
			}
			s, err := f.build(in, f.id)
			if err != nil {
				return err
			}

			e, err := a.openEngine(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.syncer.Start(cmd.Context()); err != nil {
				return err
			}
			if err := e.syncer.Add(cmd.Context(), s); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Added spot %s (%s)\n", ui.RenderPass("✓"), s.ID, s.Name)
			return nil
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&f.id, "id", "", "Spot id (default: generated)")
	return cmd
}

func newSpotsUpdateCmd(a *app) *cobra.Command {
	f := &spotFlags{}

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a spot",
		Long: `Update a spot. Fields not given keep their current value; the whole
document is then replaced in the remote store.

Examples:
  fms spots update lot-1 --availability Full
  fms spots update lot-1 -i`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			e, err := a.openEngine(ctx, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.start(ctx, func(err error) {
				warnf(cmd, "Remote store unavailable: %v", err)
			}); err != nil {
				return err
			}

			current, err := currentSpot(ctx, e, id)
			if err != nil {
				return err
			}

			in := ui.InputFromSpot(current)
			if err := f.apply(cmd, &in); err != nil {
				return err
			}
			s, err := f.build(&in, id)
			if err != nil {
				return err
			}

			if err := e.syncer.Update(ctx, s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Updated spot %s\n", ui.RenderPass("✓"), id)
			return nil
		},
	}

	f.register(cmd)
	return cmd
}

// currentSpot finds a spot in the snapshot, or else in the remote store.
func currentSpot(ctx context.Context, e *engine, id string) (spot.ParkingSpot, error) {
	if s, ok := e.syncer.Registry().Lookup(id); ok {
		return s, nil
	}

	doc, ok, err := e.store.FetchByID(ctx, id)
	if err != nil {
		return spot.ParkingSpot{}, err
	}
	if !ok {
		return spot.ParkingSpot{}, fmt.Errorf("spot %s: %w", id, spotsync.ErrNotFound)
	}
	return spot.Validate(doc)
}

func newSpotsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete spots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			e, err := a.openEngine(ctx, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.syncer.Start(ctx); err != nil {
				return err
			}

			for _, id := range args {
				if err := e.syncer.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted spot %s\n", ui.RenderPass("✓"), id)
			}
			return nil
		},
	}
}

func parseLatLon(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid point %q (want LAT,LON)", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q", parts[0])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q", parts[1])
	}
	return lat, lon, nil
}

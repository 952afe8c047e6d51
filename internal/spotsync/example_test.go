package spotsync_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/teesmad/findmyspot/internal/cache"
	"github.com/teesmad/findmyspot/internal/remote"
	"github.com/teesmad/findmyspot/internal/spot"
	"github.com/teesmad/findmyspot/internal/spotsync"
)

// This example adds a spot and reads it back from the registry.
func ExampleNew() {
	dir, err := os.MkdirTemp("", "findmyspot-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	db, err := cache.Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	store := remote.NewMemory()
	defer store.Close()

	syncer := spotsync.New(spotsync.Config{
		Cache:  db,
		Remote: store,
		Logger: log.New(os.Stderr, "", 0),
	})
	if err := syncer.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	defer syncer.Stop()

	s := spot.ParkingSpot{
		ID:           "lot-a",
		Name:         "Lot A",
		Latitude:     54.5,
		Longitude:    -1.2,
		Availability: "Available",
		PricePerHour: 2.5,
	}
	if err := syncer.Add(context.Background(), s); err != nil {
		log.Fatal(err)
	}

	got, ok := syncer.Registry().Lookup("lot-a")
	fmt.Println(ok, got.Name, got.PricePerHour)
	// Output: true Lot A 2.5
}

// This example shows how a failed remote write surfaces.
func ExampleSyncer_Add_remoteFailure() {
	dir, err := os.MkdirTemp("", "findmyspot-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	db, err := cache.Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	store := remote.NewMemory()
	syncer := spotsync.New(spotsync.Config{Cache: db, Remote: store, Logger: log.New(os.Stderr, "", 0)})
	if err := syncer.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	defer syncer.Stop()

	store.FailNextWrites(1)
	err = syncer.Add(context.Background(), spot.New("Lot B", 54.5, -1.2, "", 1, ""))
	fmt.Println(errors.Is(err, remote.ErrRemoteWriteFailed), syncer.Registry().Len())
	// Output: true 0
}

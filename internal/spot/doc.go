// Package spot defines the parking spot record and its wire and file formats.
//
// # Overview
//
// A ParkingSpot is the only entity the sync engine deals with. It has one
// remote representation (a document keyed by the spot id) and one local
// representation (a row in the cache). Both are built from and validated by
// this package, so a record accepted from a remote fetch and a record built
// from user input obey exactly the same rules.
//
// # Wire Documents
//
// Remote stores exchange RawDocument values: the document key plus a flat
// field map.
//
//	{
//	  "name": "Lot A",
//	  "latitude": 54.5,
//	  "longitude": -1.2,
//	  "availability": "Available",
//	  "price_per_hour": 2.5,
//	  "image_base64": "iVBORw0..."
//	}
//
// image_base64 is optional. Every other key is required; a document missing
// one of them (or holding a value of the wrong type) fails Validate with
// ErrInvalid and must be dropped by the caller, never defaulted.
//
// # Files
//
// The file-backed remote store keeps one document per file, named {id}.json.
// WriteSpotFile writes atomically (temp file + rename) so a watcher never
// observes a half-written document.
//
// # Usage
//
//	s, err := spot.Validate(raw)
//	if errors.Is(err, spot.ErrInvalid) {
//	    // drop the document
//	}
//
//	fresh := spot.New("Lot B", 54.57, -1.23, "", 1.5, "")
//	err = spot.WriteSpotFile("spots", fresh.Document())
package spot

// Package fake generates realistic trip and address history documents
package fake

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/autom8ter/pagestream/model"
)

// Epoch is the first trip start
var Epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Trip returns a trip starting the given number of days after Epoch
func Trip(day int) map[string]any {
	start := Epoch.AddDate(0, 0, day)
	return map[string]any{
		"start":   model.NewTimestamp(start),
		"end":     model.NewTimestamp(start.Add(time.Duration(gofakeit.IntRange(1, 72)) * time.Hour)),
		"country": gofakeit.Country(),
		"state":   gofakeit.State(),
		"city":    gofakeit.City(),
		"purpose": gofakeit.HipsterSentence(4),
	}
}

// Address returns an address history entry
func Address() map[string]any {
	addr := gofakeit.Address()
	start := gofakeit.DateRange(Epoch, Epoch.AddDate(3, 0, 0))
	return map[string]any{
		"start":        model.NewTimestamp(start),
		"locationName": gofakeit.Company(),
		"address":      addr.Address,
		"city":         addr.City,
		"state":        addr.State,
		"country":      addr.Country,
		"lat":          addr.Latitude,
		"lng":          addr.Longitude,
	}
}

// Generator returns the generator for the kind of document. Trips start on consecutive days
func Generator(kind string) (func(i int) map[string]any, bool) {
	switch kind {
	case "trips":
		return Trip, true
	case "addresses":
		return func(int) map[string]any { return Address() }, true
	}
	return nil, false
}

// Package connectors defines the outbound clients the service depends on.
package connectors

import (
	"context"
	"errors"

	"github.com/kilianp07/sosdispatch/core/model"
)

// Geocoder resolves a free-form address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (model.Location, error)
}

// Option configures a Geocoder implementation.
type Option func(Geocoder) error

// ErrIncompatibleOption is the format of the error returned when an option
// targets another client type.
const ErrIncompatibleOption = "option %s is not compatible with %s"

// ErrNoResult is returned when the address could not be resolved.
var ErrNoResult = errors.New("address not found")

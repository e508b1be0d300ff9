package factory

import (
	"fmt"

	"github.com/kilianp07/sosdispatch/connectors"
	"github.com/kilianp07/sosdispatch/connectors/clients/nominatim"
)

const (
	IDNominatim = "nominatim"
)

var (
	errUnknownClient = "unknown connector id: %s"
)

// NewGeocoder builds the geocoder identified by id.
func NewGeocoder(id string, opts ...connectors.Option) (connectors.Geocoder, error) {
	switch id {
	case IDNominatim, "":
		return nominatim.New(opts...)
	default:
		return nil, fmt.Errorf(errUnknownClient, id)
	}
}

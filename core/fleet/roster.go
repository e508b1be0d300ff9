package fleet

import "github.com/kilianp07/sosdispatch/core/model"

// DefaultRoster is the five-unit Mumbai fleet used when no roster is
// configured.
func DefaultRoster() []model.PatrolUnit {
	return []model.PatrolUnit{
		unit("PATROL-01", "Unit Alpha", 19.0760, 72.8777),
		unit("PATROL-02", "Unit Bravo", 19.0438, 72.8534),
		unit("PATROL-03", "Unit Charlie", 19.1136, 72.8697),
		unit("PATROL-04", "Unit Delta", 18.9340, 72.8356),
		unit("PATROL-05", "Unit Echo", 19.0596, 72.8295),
	}
}

func unit(id, name string, lat, lon float64) model.PatrolUnit {
	home := model.Location{Lat: lat, Lon: lon}
	return model.PatrolUnit{ID: id, Name: name, HomePosition: home, CurrentPosition: home, Status: model.UnitAvailable}
}

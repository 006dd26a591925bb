package run

import "backend-stride/internal/shared/geo"

// StepDistance is the great-circle distance in meters from prev to next, or 0
// when there is no previous point.
func StepDistance(prev *Coordinate, next Coordinate) float64 {
	if prev == nil {
		return 0
	}
	return geo.HaversineMeters(prev.Lat, prev.Lon, next.Lat, next.Lon)
}

// PathDistance sums the pairwise distances of consecutive path points.
func PathDistance(path []Coordinate) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += StepDistance(&path[i-1], path[i])
	}
	return total
}

package models

import "time"

type Route struct {
	RouteID        string
	RouteShortName string
	RouteLongName  string
	RouteType      int
	RouteURL       string
}

type Stop struct {
	StopID   string
	StopName string
	StopLat  float64
	StopLon  float64
}

type Trip struct {
	TripID       string
	RouteID      string
	ServiceID    string
	ShapeID      string
	TripHeadsign string
	DirectionID  int
}

type ShapePoint struct {
	ShapeID  string
	Lat      float64
	Lon      float64
	Sequence int
}

type StopTime struct {
	TripID        string
	ArrivalTime   string // Format: HH:MM:SS
	DepartureTime string // Format: HH:MM:SS
	StopID        string
	StopSequence  int
	PickupType    int
	DropOffType   int
}

// Calendar keeps its dates as YYYYMMDD strings; GTFS defines date-range
// comparison lexically on that form.
type Calendar struct {
	ServiceID string
	Monday    int
	Tuesday   int
	Wednesday int
	Thursday  int
	Friday    int
	Saturday  int
	Sunday    int
	StartDate string
	EndDate   string
}

// ActiveOnWeekday reports whether the weekly pattern marks the given
// weekday as operating.
func (c Calendar) ActiveOnWeekday(day time.Weekday) bool {
	switch day {
	case time.Sunday:
		return c.Sunday == 1
	case time.Monday:
		return c.Monday == 1
	case time.Tuesday:
		return c.Tuesday == 1
	case time.Wednesday:
		return c.Wednesday == 1
	case time.Thursday:
		return c.Thursday == 1
	case time.Friday:
		return c.Friday == 1
	case time.Saturday:
		return c.Saturday == 1
	}
	return false
}

type CalendarDate struct {
	ServiceID     string
	Date          string // YYYYMMDD
	ExceptionType int    // 1 = service added, 2 = service removed
}

type Emission struct {
	RouteID               string  `json:"route_id"`
	AvgCO2PerVehiclePerKm float64 `json:"avg_co2_per_vehicle_per_km"`
	AvgPassengerCount     float64 `json:"avg_passenger_count"`
}

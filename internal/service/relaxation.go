package service

import (
	"fmt"

	"ridequery/internal/model"
)

// RelaxationInput is what every strategy sees: the parameters of the primary
// search and the query they were derived from
type RelaxationInput struct {
	Params          model.SearchParameters
	Query           model.StructuredQuery
	DateLabel       string // "this weekend", "on Sat 17 Oct", empty without dates
	RelaxedRadiusKm float64
}

// RelaxationStrategy loosens a failed search. Apply is pure; ok is false when
// the strategy does not apply to the input.
type RelaxationStrategy struct {
	Name  string
	Apply func(in RelaxationInput) (params model.SearchParameters, prefix string, ok bool)
}

const (
	RelaxBroadenType  = "broaden_type"
	RelaxBroadenDate  = "broaden_date"
	RelaxLocationOnly = "location_only"
)

// relaxationStrategies is tried in order after an empty primary search; the
// first strategy that returns rides wins
var relaxationStrategies = []RelaxationStrategy{
	{Name: RelaxBroadenType, Apply: broadenType},
	{Name: RelaxBroadenDate, Apply: broadenDate},
	{Name: RelaxLocationOnly, Apply: locationOnly},
}

// broadenType keeps dates and location but drops the discipline filter
func broadenType(in RelaxationInput) (model.SearchParameters, string, bool) {
	p := in.Params
	p.Discipline = nil

	what := "rides"
	if in.Params.Discipline != nil {
		what = *in.Params.Discipline + " rides"
	}
	prefix := fmt.Sprintf("No exact match for %s%s. Here are other rides nearby%s:",
		what, spaced(in.DateLabel), spaced(in.DateLabel))
	return p, prefix, true
}

// broadenDate keeps the location and drops every date bound
func broadenDate(in RelaxationInput) (model.SearchParameters, string, bool) {
	if !in.Params.HasLocation() {
		return model.SearchParameters{}, "", false
	}
	p := in.Params
	p.Discipline = nil
	p.DateFrom = nil
	p.DateTo = nil

	label := in.DateLabel
	if label == "" {
		label = "for that date"
	}
	return p, fmt.Sprintf("No rides found %s. Here's what's upcoming nearby:", label), true
}

// locationOnly keeps coordinates and widens the radius, dropping every other filter
func locationOnly(in RelaxationInput) (model.SearchParameters, string, bool) {
	if !in.Params.HasLocation() {
		return model.SearchParameters{}, "", false
	}
	radius := in.RelaxedRadiusKm
	if in.Params.RadiusKm != nil && *in.Params.RadiusKm > radius {
		radius = *in.Params.RadiusKm
	}
	p := model.SearchParameters{
		Lat:         in.Params.Lat,
		Lng:         in.Params.Lng,
		RadiusKm:    &radius,
		ResultLimit: in.Params.ResultLimit,
	}
	prefix := fmt.Sprintf("Nothing matched all your filters. Here are upcoming rides within %s km:", formatNumber(radius))
	return p, prefix, true
}

func spaced(s string) string {
	if s == "" {
		return ""
	}
	return " " + s
}

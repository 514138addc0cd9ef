package service

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"ridequery/internal/model"
)

func TestRelaxationStrategies_Order(t *testing.T) {
	var names []string
	for _, s := range relaxationStrategies {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{RelaxBroadenType, RelaxBroadenDate, RelaxLocationOnly}, names)
}

func TestRelaxationStrategies_DoNotMutateInput(t *testing.T) {
	in := RelaxationInput{
		Params: model.SearchParameters{
			Lat: ptr(51.34), Lng: ptr(12.37), RadiusKm: ptr(20.0),
			DateFrom: ptr(day(2025, 6, 14)), DateTo: ptr(day(2025, 6, 15)),
			PaceMin: ptr(25.0), CommunitySlug: ptr("roadies"), Discipline: ptr("road"),
			Chapter: ptr("Süd"), DistanceMax: ptr(60.0), ResultLimit: 5,
		},
		DateLabel:       "this weekend",
		RelaxedRadiusKm: 100,
	}
	before := in.Params

	for _, s := range relaxationStrategies {
		_, _, ok := s.Apply(in)
		assert.True(t, ok, s.Name)
	}
	if diff := cmp.Diff(before, in.Params); diff != "" {
		t.Errorf("input params changed (-before +after):\n%s", diff)
	}
}

func TestRelaxationStrategies_Results(t *testing.T) {
	base := model.SearchParameters{
		Lat: ptr(51.34), Lng: ptr(12.37), RadiusKm: ptr(20.0),
		DateFrom: ptr(day(2025, 6, 14)), DateTo: ptr(day(2025, 6, 15)),
		PaceMin: ptr(25.0), Discipline: ptr("gravel"), ResultLimit: 5,
	}
	in := RelaxationInput{Params: base, DateLabel: "this weekend", RelaxedRadiusKm: 100}

	p, prefix, ok := broadenType(in)
	assert.True(t, ok)
	assert.Nil(t, p.Discipline)
	assert.NotNil(t, p.DateFrom)
	assert.Equal(t, "No exact match for gravel rides this weekend. Here are other rides nearby this weekend:", prefix)

	p, prefix, ok = broadenDate(in)
	assert.True(t, ok)
	assert.Nil(t, p.DateFrom)
	assert.Nil(t, p.DateTo)
	assert.Equal(t, 25.0, *p.PaceMin)
	assert.Equal(t, "No rides found this weekend. Here's what's upcoming nearby:", prefix)

	p, _, ok = locationOnly(in)
	assert.True(t, ok)
	if diff := cmp.Diff(model.SearchParameters{Lat: base.Lat, Lng: base.Lng, RadiusKm: ptr(100.0), ResultLimit: 5}, p); diff != "" {
		t.Errorf("location only params mismatch (-want +got):\n%s", diff)
	}

	noLocation := RelaxationInput{Params: model.SearchParameters{PaceMin: ptr(25.0), ResultLimit: 5}}
	_, _, ok = broadenDate(noLocation)
	assert.False(t, ok)
	_, _, ok = locationOnly(noLocation)
	assert.False(t, ok)
}

package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ridequery/internal/model"
)

type fakeParser struct {
	query model.StructuredQuery
	calls int
}

func (f *fakeParser) Parse(_ context.Context, _ string, _ time.Time) model.StructuredQuery {
	f.calls++
	return f.query
}

type fakeGeocoder struct {
	places map[string]GeoPoint
	calls  int
}

func (f *fakeGeocoder) GeocodeByName(ctx context.Context, name string) *GeoPoint {
	f.calls++
	if ctx.Err() != nil {
		return nil
	}
	if p, ok := f.places[name]; ok {
		return &p
	}
	return nil
}

func (f *fakeGeocoder) GeocodeByCoordinates(_ context.Context, _, _ float64) *GeoPlace {
	return &GeoPlace{CityLabel: "Leipzig"}
}

type scriptedSearcher struct {
	mu     sync.Mutex
	answer func(p model.SearchParameters) []model.RideCandidate
	params []model.SearchParameters
}

func (s *scriptedSearcher) SearchRides(_ context.Context, p model.SearchParameters) []model.RideCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = append(s.params, p)
	if s.answer == nil {
		return []model.RideCandidate{}
	}
	return s.answer(p)
}

var engineNow = time.Date(2025, time.June, 11, 10, 0, 0, 0, berlin)

func newTestInterpreter(parser QueryParser, geocoder Geocoder, searcher RideSearcher) *Interpreter {
	return NewInterpreter(parser, geocoder, searcher,
		NewFormatter("https://rides.example.org", berlin, fixedClock(engineNow)),
		EngineConfig{
			DefaultRadiusKm: 50,
			RelaxedRadiusKm: 100,
			ResultLimit:     5,
			CallTimeout:     time.Second,
			Location:        berlin,
		},
		fixedClock(engineNow),
		nil,
	)
}

func leipzigGeocoder() *fakeGeocoder {
	return &fakeGeocoder{places: map[string]GeoPoint{
		"Leipzig": {Lat: 51.34, Lng: 12.37, CityLabel: "Leipzig"},
	}}
}

func savedRequester() *model.RequesterContext {
	return &model.RequesterContext{
		ID:        "u1",
		Lat:       ptr(51.34),
		Lng:       ptr(12.37),
		CityLabel: ptr("Leipzig"),
	}
}

func nRides(n int) []model.RideCandidate {
	rides := make([]model.RideCandidate, n)
	for i := range rides {
		rides[i] = ride(int64(i+1), engineNow.Add(time.Duration(24*(i+1))*time.Hour))
	}
	return rides
}

func TestInterpreter_RidesNearNamedPlace(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	parser := &fakeParser{query: model.StructuredQuery{
		Intent:   model.IntentSearch,
		Location: &model.LocationQuery{Name: "Leipzig"},
	}}
	searcher := &scriptedSearcher{answer: func(model.SearchParameters) []model.RideCandidate { return nRides(3) }}

	result := newTestInterpreter(parser, leipzigGeocoder(), searcher).
		InterpretAndSearch(context.Background(), "rides near Leipzig", nil)

	assert.Equal(t, model.OutcomeResults, result.Outcome)
	assert.Len(t, result.Rides, 3)
	assert.True(t, strings.HasPrefix(result.Narrative, "Found 3 rides near Leipzig:"), result.Narrative)
	assert.Equal(t, 3, strings.Count(result.Narrative, "<b>"))

	require.Len(t, searcher.params, 1)
	p := searcher.params[0]
	assert.Equal(t, 51.34, *p.Lat)
	assert.Equal(t, 12.37, *p.Lng)
	assert.Equal(t, 50.0, *p.RadiusKm, "default radius when none was asked for")
	assert.Equal(t, 5, p.ResultLimit)
}

func TestInterpreter_WeekendFallsBackToUpcoming(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	parser := &fakeParser{query: model.StructuredQuery{
		Intent:     model.IntentSearch,
		DateRange:  &model.DateQuery{Relative: model.RelativeThisWeekend},
		Discipline: ptr(model.DisciplineGravel),
	}}
	searcher := &scriptedSearcher{answer: func(p model.SearchParameters) []model.RideCandidate {
		if p.DateFrom != nil || p.DateTo != nil {
			return []model.RideCandidate{}
		}
		return nRides(2)
	}}

	result := newTestInterpreter(parser, leipzigGeocoder(), searcher).
		InterpretAndSearch(context.Background(), "gravel rides this weekend", savedRequester())

	assert.Equal(t, model.OutcomeRelaxed, result.Outcome)
	assert.Equal(t, RelaxBroadenDate, result.Relaxation)
	assert.Len(t, result.Rides, 2)
	assert.True(t, strings.HasPrefix(result.Narrative, "No rides found this weekend."), result.Narrative)
	assert.Contains(t, result.Narrative, "Found 2 rides near Leipzig:")

	require.Len(t, searcher.params, 3)
	primary := searcher.params[0]
	assert.True(t, day(2025, 6, 14).Equal(*primary.DateFrom))
	assert.True(t, day(2025, 6, 15).Equal(*primary.DateTo))
	assert.Equal(t, model.DisciplineGravel, *primary.Discipline)

	broadenedType := primary
	broadenedType.Discipline = nil
	if diff := cmp.Diff(broadenedType, searcher.params[1]); diff != "" {
		t.Errorf("broaden type params mismatch (-want +got):\n%s", diff)
	}

	broadenedDate := searcher.params[2]
	assert.Nil(t, broadenedDate.DateFrom)
	assert.Nil(t, broadenedDate.DateTo)
	assert.Equal(t, 51.34, *broadenedDate.Lat)
}

func TestInterpreter_UnknownPlace(t *testing.T) {
	parser := &fakeParser{query: model.StructuredQuery{
		Intent:   model.IntentSearch,
		Location: &model.LocationQuery{Name: "Atlantis"},
	}}
	searcher := &scriptedSearcher{}

	result := newTestInterpreter(parser, leipzigGeocoder(), searcher).
		InterpretAndSearch(context.Background(), "rides near Atlantis", savedRequester())

	assert.Equal(t, LocationNotFoundText("Atlantis"), result.Narrative)
	assert.Equal(t, model.OutcomeLocationNotFound, result.Outcome)
	assert.Empty(t, result.Rides)
	assert.Empty(t, searcher.params, "no search after a failed geocode")
}

func TestInterpreter_EmptyMessage(t *testing.T) {
	parser := &fakeParser{}
	geocoder := leipzigGeocoder()
	searcher := &scriptedSearcher{}

	for _, text := range []string{"", "   \n\t"} {
		result := newTestInterpreter(parser, geocoder, searcher).
			InterpretAndSearch(context.Background(), text, savedRequester())
		assert.Equal(t, HelpText, result.Narrative)
		assert.Equal(t, model.OutcomeHelp, result.Outcome)
	}
	assert.Zero(t, parser.calls)
	assert.Zero(t, geocoder.calls)
	assert.Empty(t, searcher.params)
}

func TestInterpreter_HelpIntent(t *testing.T) {
	parser := &fakeParser{query: model.StructuredQuery{Intent: model.IntentHelp}}
	searcher := &scriptedSearcher{}

	result := newTestInterpreter(parser, leipzigGeocoder(), searcher).
		InterpretAndSearch(context.Background(), "what can you do?", savedRequester())

	assert.Equal(t, HelpText, result.Narrative)
	assert.Equal(t, 1, parser.calls)
	assert.Empty(t, searcher.params)
}

func TestInterpreter_UnknownIntentWithoutLocation(t *testing.T) {
	parser := &fakeParser{query: model.UnknownQuery()}
	searcher := &scriptedSearcher{}

	result := newTestInterpreter(parser, leipzigGeocoder(), searcher).
		InterpretAndSearch(context.Background(), "asdf qwerty", nil)

	assert.NotNil(t, result.Rides)
	assert.Empty(t, result.Rides)
	assert.Equal(t, NothingFoundText, result.Narrative)
	assert.Empty(t, searcher.params)
}

func TestInterpreter_UnknownIntentWithSavedLocation(t *testing.T) {
	parser := &fakeParser{query: model.UnknownQuery()}
	searcher := &scriptedSearcher{answer: func(model.SearchParameters) []model.RideCandidate { return nRides(1) }}

	requester := savedRequester()
	requester.RadiusKm = ptr(30.0)
	result := newTestInterpreter(parser, leipzigGeocoder(), searcher).
		InterpretAndSearch(context.Background(), "anything?", requester)

	assert.Equal(t, model.OutcomeResults, result.Outcome)
	require.Len(t, searcher.params, 1)
	if diff := cmp.Diff(model.SearchParameters{
		Lat: ptr(51.34), Lng: ptr(12.37), RadiusKm: ptr(30.0), ResultLimit: 5,
	}, searcher.params[0]); diff != "" {
		t.Errorf("nearest-rides params mismatch (-want +got):\n%s", diff)
	}
}

func TestInterpreter_RelaxationPrecedence(t *testing.T) {
	parser := &fakeParser{query: model.StructuredQuery{
		Intent:    model.IntentSearch,
		Location:  &model.LocationQuery{UseMyLocation: true},
		DateRange: &model.DateQuery{From: "2025-06-14", To: "2025-06-14"},
		Pace:      &model.Bounds{Min: ptr(30.0)},
	}}
	dateDropped := nRides(2)
	locationOnly := nRides(4)
	searcher := &scriptedSearcher{answer: func(p model.SearchParameters) []model.RideCandidate {
		switch {
		case p.DateFrom != nil:
			return []model.RideCandidate{}
		case p.PaceMin != nil:
			return dateDropped
		default:
			return locationOnly
		}
	}}

	result := newTestInterpreter(parser, leipzigGeocoder(), searcher).
		InterpretAndSearch(context.Background(), "fast rides near me on Saturday", savedRequester())

	assert.Equal(t, RelaxBroadenDate, result.Relaxation)
	assert.Equal(t, ids(dateDropped), ids(result.Rides))
	assert.True(t, strings.HasPrefix(result.Narrative, "No rides found on Sat 14 Jun."), result.Narrative)
	assert.Len(t, searcher.params, 2, "broaden type is skipped without a discipline, location only is never reached")
}

func TestInterpreter_LocationOnly(t *testing.T) {
	parser := &fakeParser{query: model.StructuredQuery{
		Intent:    model.IntentSearch,
		Community: ptr("gravel-crew"),
		RadiusKm:  ptr(10.0),
	}}
	searcher := &scriptedSearcher{answer: func(p model.SearchParameters) []model.RideCandidate {
		if p.CommunitySlug != nil {
			return []model.RideCandidate{}
		}
		return nRides(1)
	}}

	result := newTestInterpreter(parser, leipzigGeocoder(), searcher).
		InterpretAndSearch(context.Background(), "gravel crew rides", savedRequester())

	assert.Equal(t, RelaxLocationOnly, result.Relaxation)
	assert.Contains(t, result.Narrative, "within 100 km")
	require.Len(t, searcher.params, 2)
	assert.Equal(t, 10.0, *searcher.params[0].RadiusKm)
	assert.Equal(t, 100.0, *searcher.params[1].RadiusKm)
	assert.Nil(t, searcher.params[1].CommunitySlug)
}

func TestInterpreter_NothingAnywhere(t *testing.T) {
	parser := &fakeParser{query: model.StructuredQuery{
		Intent:     model.IntentSearch,
		Location:   &model.LocationQuery{Name: "Leipzig"},
		DateRange:  &model.DateQuery{Relative: model.RelativeTomorrow},
		Discipline: ptr(model.DisciplineMTB),
	}}
	searcher := &scriptedSearcher{}

	result := newTestInterpreter(parser, leipzigGeocoder(), searcher).
		InterpretAndSearch(context.Background(), "mtb tomorrow in Leipzig", nil)

	assert.Equal(t, model.OutcomeNothingFound, result.Outcome)
	assert.Equal(t, NothingFoundText, result.Narrative)
	assert.Len(t, searcher.params, 4, "primary plus three relaxations")
}

func TestInterpreter_NoLocationOnlyBroadensType(t *testing.T) {
	parser := &fakeParser{query: model.StructuredQuery{
		Intent:     model.IntentSearch,
		DateRange:  &model.DateQuery{Relative: model.RelativeTomorrow},
		Discipline: ptr(model.DisciplineRoad),
	}}
	searcher := &scriptedSearcher{}

	result := newTestInterpreter(parser, leipzigGeocoder(), searcher).
		InterpretAndSearch(context.Background(), "road rides tomorrow", nil)

	assert.Equal(t, NothingFoundText, result.Narrative)
	assert.Len(t, searcher.params, 2)
}

func TestInterpreter_RadiusPrecedence(t *testing.T) {
	searcher := &scriptedSearcher{answer: func(model.SearchParameters) []model.RideCandidate { return nRides(1) }}
	requester := savedRequester()
	requester.RadiusKm = ptr(30.0)

	parser := &fakeParser{query: model.StructuredQuery{
		Intent:   model.IntentSearch,
		Location: &model.LocationQuery{UseMyLocation: true},
		RadiusKm: ptr(15.0),
	}}
	newTestInterpreter(parser, leipzigGeocoder(), searcher).InterpretAndSearch(context.Background(), "within 15 km", requester)

	parser.query.RadiusKm = nil
	newTestInterpreter(parser, leipzigGeocoder(), searcher).InterpretAndSearch(context.Background(), "near me", requester)

	require.Len(t, searcher.params, 2)
	assert.Equal(t, 15.0, *searcher.params[0].RadiusKm)
	assert.Equal(t, 30.0, *searcher.params[1].RadiusKm)
}

func TestInterpreter_StreamEvents(t *testing.T) {
	parser := &fakeParser{query: model.StructuredQuery{
		Intent:    model.IntentSearch,
		Location:  &model.LocationQuery{Name: "Leipzig"},
		DateRange: &model.DateQuery{Relative: model.RelativeToday},
	}}
	searcher := &scriptedSearcher{answer: func(p model.SearchParameters) []model.RideCandidate {
		if p.DateFrom != nil {
			return []model.RideCandidate{}
		}
		return nRides(1)
	}}

	var events []string
	result := newTestInterpreter(parser, leipzigGeocoder(), searcher).InterpretAndSearchStream(
		context.Background(), "rides near Leipzig today", nil,
		func(event string, _ any) error {
			events = append(events, event)
			return nil
		})

	assert.Equal(t, model.OutcomeRelaxed, result.Outcome)
	assert.Equal(t, []string{"parsing", "intent", "geocoding", "searching", "relaxing"}, events)

	var failing []string
	result = newTestInterpreter(parser, leipzigGeocoder(), searcher).InterpretAndSearchStream(
		context.Background(), "rides near Leipzig today", nil,
		func(event string, _ any) error {
			failing = append(failing, event)
			return errors.New("client gone")
		})
	assert.Equal(t, []string{"parsing"}, failing)
	assert.Equal(t, model.OutcomeRelaxed, result.Outcome, "a failing callback does not stop the interpretation")
}

func TestInterpreter_CanceledWhileGeocoding(t *testing.T) {
	parser := &fakeParser{query: model.StructuredQuery{
		Intent:   model.IntentSearch,
		Location: &model.LocationQuery{Name: "Leipzig"},
	}}
	searcher := &scriptedSearcher{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newTestInterpreter(parser, leipzigGeocoder(), searcher).InterpretAndSearch(ctx, "rides near Leipzig", nil)
	assert.Equal(t, model.OutcomeNothingFound, result.Outcome, "a canceled lookup is not a missing place")
	assert.Empty(t, searcher.params)
}

package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ridequery/internal/model"
)

type mockLanguageModel struct {
	mock.Mock
}

func (m *mockLanguageModel) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockLanguageModel) IsEnabled() bool {
	return m.Called().Bool(0)
}

func (m *mockLanguageModel) Name() string {
	return "mock"
}

var saturday = time.Date(2025, time.June, 14, 9, 30, 0, 0, time.UTC)

func TestIntentParser_Parse(t *testing.T) {
	llm := new(mockLanguageModel)
	llm.On("IsEnabled").Return(true)
	llm.On("Complete", mock.Anything, mock.MatchedBy(func(req CompletionRequest) bool {
		return req.JSONMode &&
			req.Temperature <= 0.2 &&
			strings.Contains(req.System, "this_weekend") &&
			strings.Contains(req.User, "Saturday, 2025-06-14") &&
			strings.Contains(req.User, "rides near Leipzig")
	})).Return(`Sure! {"intent": "search", "location": {"name": "Leipzig"}}`, nil).Once()

	parser := NewIntentParser(llm, time.Second, nil)
	q := parser.Parse(context.Background(), "rides near Leipzig", saturday)

	assert.Equal(t, model.IntentSearch, q.Intent)
	require.NotNil(t, q.Location)
	assert.Equal(t, "Leipzig", q.Location.Name)
	llm.AssertExpectations(t)
}

func TestIntentParser_ParseDegradesToUnknown(t *testing.T) {
	t.Run("blank text makes no call", func(t *testing.T) {
		llm := new(mockLanguageModel)
		q := NewIntentParser(llm, time.Second, nil).Parse(context.Background(), "   ", saturday)
		assert.Equal(t, model.UnknownQuery(), q)
		llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	})

	t.Run("nil model", func(t *testing.T) {
		q := NewIntentParser(nil, time.Second, nil).Parse(context.Background(), "rides", saturday)
		assert.Equal(t, model.UnknownQuery(), q)
	})

	t.Run("disabled model", func(t *testing.T) {
		llm := new(mockLanguageModel)
		llm.On("IsEnabled").Return(false)
		q := NewIntentParser(llm, time.Second, nil).Parse(context.Background(), "rides", saturday)
		assert.Equal(t, model.UnknownQuery(), q)
		llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	})

	t.Run("provider error", func(t *testing.T) {
		llm := new(mockLanguageModel)
		llm.On("IsEnabled").Return(true)
		llm.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("status 503"))
		q := NewIntentParser(llm, time.Second, nil).Parse(context.Background(), "rides", saturday)
		assert.Equal(t, model.UnknownQuery(), q)
	})

	t.Run("reply without JSON", func(t *testing.T) {
		llm := new(mockLanguageModel)
		llm.On("IsEnabled").Return(true)
		llm.On("Complete", mock.Anything, mock.Anything).Return("I'm not sure what you mean.", nil)
		q := NewIntentParser(llm, time.Second, nil).Parse(context.Background(), "rides", saturday)
		assert.Equal(t, model.UnknownQuery(), q)
	})
}

func TestIntentParser_Decode(t *testing.T) {
	parser := NewIntentParser(nil, 0, nil)

	t.Run("full reply", func(t *testing.T) {
		q, err := parser.Decode(`{
			"intent": "search",
			"location": {"useMyLocation": true},
			"radius": 30,
			"dateRange": {"relative": "tomorrow"},
			"pace": {"min": 27, "max": 32},
			"distance": {"min": 80, "max": 100},
			"community": "Leipzig Roadies",
			"chapter": "Südvorstadt",
			"discipline": "Road"
		}`)
		require.NoError(t, err)

		assert.Equal(t, model.IntentSearch, q.Intent)
		assert.Equal(t, &model.LocationQuery{UseMyLocation: true}, q.Location)
		assert.Equal(t, 30.0, *q.RadiusKm)
		assert.Equal(t, &model.DateQuery{Relative: model.RelativeTomorrow}, q.DateRange)
		assert.Equal(t, 27.0, *q.Pace.Min)
		assert.Equal(t, 32.0, *q.Pace.Max)
		assert.Equal(t, 80.0, *q.Distance.Min)
		assert.Equal(t, 100.0, *q.Distance.Max)
		assert.Equal(t, "leipzig-roadies", *q.Community)
		assert.Equal(t, "Südvorstadt", *q.Chapter)
		assert.Equal(t, model.DisciplineRoad, *q.Discipline)
	})

	t.Run("missing intent is unknown", func(t *testing.T) {
		q, err := parser.Decode(`{"location": {"name": "Halle"}}`)
		require.NoError(t, err)
		assert.Equal(t, model.IntentUnknown, q.Intent)
		assert.Equal(t, "Halle", q.Location.Name)
	})

	t.Run("invalid fields are dropped individually", func(t *testing.T) {
		q, err := parser.Decode(`{"intent": "book", "radius": -5, "discipline": "unicycle",
			"dateRange": {"from": "14/06/2025"}, "pace": {"min": 25, "max": 900}}`)
		require.NoError(t, err)
		assert.Equal(t, model.IntentUnknown, q.Intent)
		assert.Nil(t, q.RadiusKm)
		assert.Nil(t, q.Discipline)
		assert.Nil(t, q.DateRange)
		require.NotNil(t, q.Pace)
		assert.Equal(t, 25.0, *q.Pace.Min)
		assert.Nil(t, q.Pace.Max)
	})

	t.Run("explicit dates win over a relative token", func(t *testing.T) {
		q, err := parser.Decode(`{"intent": "search", "dateRange": {"from": "2025-06-20", "to": "2025-06-18", "relative": "next_week"}}`)
		require.NoError(t, err)
		assert.Equal(t, &model.DateQuery{From: "2025-06-18", To: "2025-06-20"}, q.DateRange)
	})

	t.Run("relative aliases", func(t *testing.T) {
		q, err := parser.Decode(`{"intent": "search", "dateRange": "weekend"}`)
		require.NoError(t, err)
		assert.Equal(t, model.RelativeThisWeekend, q.DateRange.Relative)

		q, err = parser.Decode(`{"intent": "search", "dateRange": {"relative": "Next Week"}}`)
		require.NoError(t, err)
		assert.Equal(t, model.RelativeNextWeek, q.DateRange.Relative)
	})

	t.Run("band names and unit strings", func(t *testing.T) {
		q, err := parser.Decode(`{"intent": "search", "pace": "casual", "distance": "long", "radius": "25 km"}`)
		require.NoError(t, err)
		assert.Nil(t, q.Pace.Min)
		assert.Equal(t, 22.0, *q.Pace.Max)
		assert.Equal(t, 80.0, *q.Distance.Min)
		assert.Equal(t, 120.0, *q.Distance.Max)
		assert.Equal(t, 25.0, *q.RadiusKm)
	})

	t.Run("reversed bounds are ordered", func(t *testing.T) {
		q, err := parser.Decode(`{"intent": "search", "pace": {"min": 30, "max": 24}}`)
		require.NoError(t, err)
		assert.Equal(t, 24.0, *q.Pace.Min)
		assert.Equal(t, 30.0, *q.Pace.Max)
	})

	t.Run("location given as a bare string", func(t *testing.T) {
		q, err := parser.Decode(`{intent: 'search', location: 'Dresden',}`)
		require.NoError(t, err)
		assert.Equal(t, "Dresden", q.Location.Name)
	})

	t.Run("no object", func(t *testing.T) {
		q, err := parser.Decode("nothing here")
		assert.Error(t, err)
		assert.Equal(t, model.UnknownQuery(), q)
	})
}

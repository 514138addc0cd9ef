package service

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.uber.org/zap"

	"ridequery/internal/model"
)

// HelpText is the reply to an empty message or a plain request for help
const HelpText = `Tell me what kind of ride you're looking for, for example:
• rides near Leipzig this weekend
• gravel rides tomorrow within 30 km
• casual rides next week
• fast road rides near me on 2025-06-14

Share your location once and I'll use it whenever you say "near me".`

// NothingFoundText is the reply when every relaxation came back empty
const NothingFoundText = "Nothing found right now. Try again later, or ask about another place or date."

// LocationNotFoundText is the reply when a named place cannot be geocoded
func LocationNotFoundText(name string) string {
	return fmt.Sprintf("I couldn't find a place called \"%s\". Try a nearby town or city name.", escape(name))
}

// QueryParser turns chat text into a structured query; it never fails
type QueryParser interface {
	Parse(ctx context.Context, rawText string, today time.Time) model.StructuredQuery
}

// RideSearcher runs one filtered ride search; failures yield an empty list
type RideSearcher interface {
	SearchRides(ctx context.Context, p model.SearchParameters) []model.RideCandidate
}

// SearchEventCallback is called for streaming search events
type SearchEventCallback func(event string, data any) error

// EngineConfig holds the interpreter's defaults
type EngineConfig struct {
	DefaultRadiusKm float64
	RelaxedRadiusKm float64
	ResultLimit     int
	CallTimeout     time.Duration // per external call
	Location        *time.Location
}

// Interpreter turns one chat message into rides and a narrative
type Interpreter struct {
	parser    QueryParser
	geocoder  Geocoder
	rides     RideSearcher
	formatter *Formatter
	cfg       EngineConfig
	clock     func() time.Time
	logger    *zap.Logger
}

// NewInterpreter creates an interpreter
func NewInterpreter(
	parser QueryParser,
	geocoder Geocoder,
	rides RideSearcher,
	formatter *Formatter,
	cfg EngineConfig,
	clock func() time.Time,
	logger *zap.Logger,
) *Interpreter {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{
		parser:    parser,
		geocoder:  geocoder,
		rides:     rides,
		formatter: formatter,
		cfg:       cfg,
		clock:     clock,
		logger:    logger.Named("interpreter"),
	}
}

// InterpretAndSearch never fails: every adapter failure degrades to "no data"
// and the result always carries a narrative
func (e *Interpreter) InterpretAndSearch(ctx context.Context, rawText string, requester *model.RequesterContext) model.Interpretation {
	return e.run(ctx, rawText, requester, nil)
}

// InterpretAndSearchStream is InterpretAndSearch reporting each stage to callback.
// A failing callback stops further events but not the interpretation.
func (e *Interpreter) InterpretAndSearchStream(ctx context.Context, rawText string, requester *model.RequesterContext, callback SearchEventCallback) model.Interpretation {
	return e.run(ctx, rawText, requester, callback)
}

func (e *Interpreter) run(ctx context.Context, rawText string, requester *model.RequesterContext, callback SearchEventCallback) model.Interpretation {
	emit := e.emitter(callback)

	if strings.TrimSpace(rawText) == "" {
		return helpInterpretation(model.UnknownQuery())
	}

	now := e.clock().In(e.cfg.Location)

	emit("parsing", map[string]any{"status": "Reading your message..."})
	q := e.parse(ctx, rawText, now)
	emit("intent", q)

	if q.Intent == model.IntentHelp && !q.HasFilters() {
		return helpInterpretation(q)
	}

	var (
		lat, lng *float64
		label    string
	)
	switch {
	case q.Location != nil && strings.TrimSpace(q.Location.Name) != "":
		name := strings.TrimSpace(q.Location.Name)
		emit("geocoding", map[string]any{"location": name})

		point := e.geocode(ctx, name)
		if point == nil {
			if ctx.Err() != nil {
				return e.nothingFound(q, model.SearchParameters{}, "canceled while geocoding")
			}
			e.logger.Info("Location not found", zap.String("location", name))
			return model.Interpretation{
				Rides:     []model.RideCandidate{},
				Narrative: LocationNotFoundText(name),
				Outcome:   model.OutcomeLocationNotFound,
				Query:     q,
			}
		}
		lat, lng = floatPtr(point.Lat), floatPtr(point.Lng)
		label = point.CityLabel
		if label == "" {
			label = name
		}

	case requester.HasLocation() && (q.Location == nil || q.Location.UseMyLocation):
		lat, lng = copyFloat(requester.Lat), copyFloat(requester.Lng)
		if requester.CityLabel != nil {
			label = *requester.CityLabel
		}
	}

	params, dateLabel := e.buildParams(q, requester, lat, lng, now)
	if isUnconstrained(params) {
		return e.nothingFound(q, params, "nothing recovered and no location")
	}

	emit("searching", params)
	rides := e.search(ctx, params)
	if len(rides) > 0 {
		e.logger.Info("Rides found", zap.Int("count", len(rides)))
		return model.Interpretation{
			Rides:         rides,
			Narrative:     e.formatter.FormatRideList(rides, label, lat, lng),
			Outcome:       model.OutcomeResults,
			Query:         q,
			Params:        params,
			LocationLabel: label,
		}
	}

	in := RelaxationInput{
		Params:          params,
		Query:           q,
		DateLabel:       dateLabel,
		RelaxedRadiusKm: e.cfg.RelaxedRadiusKm,
	}
	previous := params
	for _, strategy := range relaxationStrategies {
		if ctx.Err() != nil {
			break
		}
		relaxed, prefix, ok := strategy.Apply(in)
		if !ok || reflect.DeepEqual(relaxed, previous) {
			continue
		}
		previous = relaxed

		emit("relaxing", map[string]any{"strategy": strategy.Name})
		rides = e.search(ctx, relaxed)
		if len(rides) == 0 {
			continue
		}

		e.logger.Info("Rides found after relaxing",
			zap.String("strategy", strategy.Name),
			zap.Int("count", len(rides)),
		)
		return model.Interpretation{
			Rides:         rides,
			Narrative:     prefix + "\n\n" + e.formatter.FormatRideList(rides, label, lat, lng),
			Outcome:       model.OutcomeRelaxed,
			Relaxation:    strategy.Name,
			Query:         q,
			Params:        relaxed,
			LocationLabel: label,
		}
	}

	return e.nothingFound(q, params, "relaxation exhausted")
}

// buildParams assembles gateway parameters and a narrative label for the date window
func (e *Interpreter) buildParams(q model.StructuredQuery, requester *model.RequesterContext, lat, lng *float64, now time.Time) (model.SearchParameters, string) {
	p := model.SearchParameters{ResultLimit: e.cfg.ResultLimit}

	if lat != nil && lng != nil {
		p.Lat, p.Lng = lat, lng
		switch {
		case q.RadiusKm != nil:
			p.RadiusKm = copyFloat(q.RadiusKm)
		case requester != nil && requester.RadiusKm != nil:
			p.RadiusKm = copyFloat(requester.RadiusKm)
		default:
			p.RadiusKm = floatPtr(e.cfg.DefaultRadiusKm)
		}
	}

	dateLabel := ""
	if q.DateRange != nil {
		var r DateRange
		if q.DateRange.Relative != "" {
			r, _ = ResolveRelativeRange(q.DateRange.Relative, now)
		} else {
			r = e.explicitRange(q.DateRange)
		}
		if !r.From.IsZero() {
			from := r.From
			p.DateFrom = &from
		}
		if !r.To.IsZero() {
			to := r.To
			p.DateTo = &to
		}
		if p.DateFrom != nil || p.DateTo != nil {
			dateLabel = DescribeRange(q.DateRange, r)
		}
	}

	if q.Pace != nil {
		p.PaceMin, p.PaceMax = copyFloat(q.Pace.Min), copyFloat(q.Pace.Max)
	}
	if q.Distance != nil {
		p.DistanceMin, p.DistanceMax = copyFloat(q.Distance.Min), copyFloat(q.Distance.Max)
	}
	p.CommunitySlug = copyString(q.Community)
	p.Discipline = copyString(q.Discipline)
	p.Chapter = copyString(q.Chapter)

	return p, dateLabel
}

func (e *Interpreter) explicitRange(d *model.DateQuery) DateRange {
	var r DateRange
	if d.From != "" {
		if t, err := ParseCalendarDate(d.From, e.cfg.Location); err == nil {
			r.From = t
		} else {
			e.logger.Debug("Ignoring date bound", zap.Error(err))
		}
	}
	if d.To != "" {
		if t, err := ParseCalendarDate(d.To, e.cfg.Location); err == nil {
			r.To = t
		} else {
			e.logger.Debug("Ignoring date bound", zap.Error(err))
		}
	}
	return r
}

func (e *Interpreter) parse(ctx context.Context, rawText string, now time.Time) model.StructuredQuery {
	callCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.parser.Parse(callCtx, rawText, now)
}

func (e *Interpreter) geocode(ctx context.Context, name string) *GeoPoint {
	callCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.geocoder.GeocodeByName(callCtx, name)
}

func (e *Interpreter) search(ctx context.Context, p model.SearchParameters) []model.RideCandidate {
	callCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.rides.SearchRides(callCtx, p)
}

func (e *Interpreter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.CallTimeout)
}

func (e *Interpreter) emitter(callback SearchEventCallback) func(event string, data any) {
	return func(event string, data any) {
		if callback == nil {
			return
		}
		if err := callback(event, data); err != nil {
			e.logger.Debug("Event callback failed, no further events", zap.String("event", event), zap.Error(err))
			callback = nil
		}
	}
}

func (e *Interpreter) nothingFound(q model.StructuredQuery, p model.SearchParameters, reason string) model.Interpretation {
	e.logger.Info("Nothing found", zap.String("reason", reason))
	return model.Interpretation{
		Rides:     []model.RideCandidate{},
		Narrative: NothingFoundText,
		Outcome:   model.OutcomeNothingFound,
		Query:     q,
		Params:    p,
	}
}

func helpInterpretation(q model.StructuredQuery) model.Interpretation {
	return model.Interpretation{
		Rides:     []model.RideCandidate{},
		Narrative: HelpText,
		Outcome:   model.OutcomeHelp,
		Query:     q,
	}
}

// isUnconstrained reports whether p carries nothing but the result limit
func isUnconstrained(p model.SearchParameters) bool {
	return reflect.DeepEqual(p, model.SearchParameters{ResultLimit: p.ResultLimit})
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

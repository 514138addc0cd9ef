package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"ridequery/internal/model"
	"ridequery/internal/utils"
)

const rideQuerySystemPrompt = `You turn chat messages about group cycling rides into a search query.
Respond ONLY with one JSON object. Omit every field the message does not mention.

Schema:
{
  "intent": "search" | "detail" | "help" | "unknown",
  "location": {"name": "<place to geocode>"} or {"useMyLocation": true},
  "radius": <search radius in km>,
  "dateRange": {"from": "YYYY-MM-DD", "to": "YYYY-MM-DD"} or {"relative": "<token>"},
  "pace": {"min": <km/h>, "max": <km/h>},
  "distance": {"min": <km>, "max": <km>},
  "community": "<community slug>",
  "chapter": "<local chapter name>",
  "discipline": "road" | "gravel" | "mtb" | "mixed"
}

Relative date tokens: today, tomorrow, this_weekend, this_week, next_week.
Use explicit from/to dates only for named days or dates, computed from today's date.

Pace bands (average speed, km/h):
- casual / social / no-drop: max 22
- moderate / steady: min 22, max 27
- fast / brisk: min 27, max 32
- race / hammer / very fast: min 32

Distance bands (km):
- short: max 40
- medium: min 40, max 80
- long: min 80, max 120
- epic / century: min 120

Rules:
- "near me", "around here", "close by" mean {"useMyLocation": true}.
- "help", "what can you do" and greetings are intent "help".
- Asking about one specific ride is intent "detail".
- Numbers are plain numbers without units.

Examples:
Message: "rides near Leipzig"
Response: {"intent": "search", "location": {"name": "Leipzig"}}

Message: "gravel rides this weekend"
Response: {"intent": "search", "dateRange": {"relative": "this_weekend"}, "discipline": "gravel"}

Message: "fast road ride within 30km of me tomorrow, 80-100km"
Response: {"intent": "search", "location": {"useMyLocation": true}, "radius": 30, "dateRange": {"relative": "tomorrow"}, "pace": {"min": 27, "max": 32}, "distance": {"min": 80, "max": 100}, "discipline": "road"}`

// IntentParser turns raw chat text into a StructuredQuery using a language model
type IntentParser struct {
	llm         LanguageModel
	validate    *validator.Validate
	logger      *zap.Logger
	timeout     time.Duration
	temperature float64
	maxTokens   int
}

// NewIntentParser creates a new intent parser. A nil model makes every parse unknown.
func NewIntentParser(llm LanguageModel, timeout time.Duration, logger *zap.Logger) *IntentParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntentParser{
		llm:         llm,
		validate:    validator.New(),
		logger:      logger.Named("intent"),
		timeout:     timeout,
		temperature: 0.1,
		maxTokens:   300,
	}
}

// Parse extracts a StructuredQuery from a chat message. It never fails: any
// provider or decoding problem yields {intent: unknown}.
func (p *IntentParser) Parse(ctx context.Context, rawText string, today time.Time) model.StructuredQuery {
	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return model.UnknownQuery()
	}

	if p.llm == nil || !p.llm.IsEnabled() {
		p.logger.Warn("Language model is not enabled, returning unknown intent")
		return model.UnknownQuery()
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	content, err := p.llm.Complete(ctx, CompletionRequest{
		System:      rideQuerySystemPrompt,
		User:        buildUserPrompt(rawText, today),
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		p.logger.Warn("Language model call failed", zap.String("provider", p.llm.Name()), zap.Error(err))
		return model.UnknownQuery()
	}

	query, err := p.Decode(content)
	if err != nil {
		p.logger.Warn("Failed to decode language model reply",
			zap.String("content", truncate(content, 200)),
			zap.Error(err),
		)
		return model.UnknownQuery()
	}

	return query
}

func buildUserPrompt(rawText string, today time.Time) string {
	return fmt.Sprintf("Today is %s, %s.\nMessage: %q", today.Weekday(), today.Format("2006-01-02"), rawText)
}

// rawQuery is the flattened, coerced form of a reply, checked field by field
type rawQuery struct {
	Intent        string `validate:"omitempty,oneof=search detail help unknown"`
	LocationName  string `validate:"omitempty,max=120"`
	UseMyLocation bool
	RadiusKm      *float64 `validate:"omitempty,gt=0,lte=500"`
	DateFrom      string   `validate:"omitempty,datetime=2006-01-02"`
	DateTo        string   `validate:"omitempty,datetime=2006-01-02"`
	Relative      string   `validate:"omitempty,oneof=today tomorrow this_weekend this_week next_week"`
	PaceMin       *float64 `validate:"omitempty,gt=0,lte=80"`
	PaceMax       *float64 `validate:"omitempty,gt=0,lte=80"`
	DistanceMin   *float64 `validate:"omitempty,gt=0,lte=1000"`
	DistanceMax   *float64 `validate:"omitempty,gt=0,lte=1000"`
	Community     string   `validate:"omitempty,max=80"`
	Chapter       string   `validate:"omitempty,max=120"`
	Discipline    string   `validate:"omitempty,oneof=road gravel mtb mixed"`
}

// Decode coerces a model reply into a StructuredQuery. Only a reply without any
// JSON object is an error; invalid fields are dropped one by one.
func (p *IntentParser) Decode(content string) (model.StructuredQuery, error) {
	var fields map[string]any
	if err := utils.ParseLenient(content, &fields); err != nil {
		return model.UnknownQuery(), err
	}

	raw := coerceRawQuery(fields)
	p.dropInvalid(&raw)
	return raw.toStructuredQuery(), nil
}

// dropInvalid clears every field that fails validation
func (p *IntentParser) dropInvalid(raw *rawQuery) {
	err := p.validate.Struct(raw)
	if err == nil {
		return
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		p.logger.Warn("Unexpected validation failure", zap.Error(err))
		return
	}

	for _, fe := range verrs {
		p.logger.Debug("Dropping invalid field", zap.String("field", fe.Field()), zap.String("tag", fe.Tag()))
		switch fe.Field() {
		case "Intent":
			raw.Intent = ""
		case "LocationName":
			raw.LocationName = ""
		case "RadiusKm":
			raw.RadiusKm = nil
		case "DateFrom":
			raw.DateFrom = ""
		case "DateTo":
			raw.DateTo = ""
		case "Relative":
			raw.Relative = ""
		case "PaceMin":
			raw.PaceMin = nil
		case "PaceMax":
			raw.PaceMax = nil
		case "DistanceMin":
			raw.DistanceMin = nil
		case "DistanceMax":
			raw.DistanceMax = nil
		case "Community":
			raw.Community = ""
		case "Chapter":
			raw.Chapter = ""
		case "Discipline":
			raw.Discipline = ""
		}
	}
}

func (r rawQuery) toStructuredQuery() model.StructuredQuery {
	q := model.StructuredQuery{Intent: model.Intent(r.Intent)}
	if q.Intent == "" {
		q.Intent = model.IntentUnknown
	}

	switch {
	case r.LocationName != "":
		q.Location = &model.LocationQuery{Name: r.LocationName}
	case r.UseMyLocation:
		q.Location = &model.LocationQuery{UseMyLocation: true}
	}

	q.RadiusKm = r.RadiusKm

	// Explicit dates win over a relative token; only one representation is kept
	from, to := r.DateFrom, r.DateTo
	if from != "" && to != "" && from > to {
		from, to = to, from
	}
	switch {
	case from != "" || to != "":
		q.DateRange = &model.DateQuery{From: from, To: to}
	case r.Relative != "":
		q.DateRange = &model.DateQuery{Relative: r.Relative}
	}

	q.Pace = orderedBounds(r.PaceMin, r.PaceMax)
	q.Distance = orderedBounds(r.DistanceMin, r.DistanceMax)

	if r.Community != "" {
		q.Community = &r.Community
	}
	if r.Chapter != "" {
		q.Chapter = &r.Chapter
	}
	if r.Discipline != "" {
		q.Discipline = &r.Discipline
	}
	return q
}

func orderedBounds(minV, maxV *float64) *model.Bounds {
	if minV == nil && maxV == nil {
		return nil
	}
	if minV != nil && maxV != nil && *minV > *maxV {
		minV, maxV = maxV, minV
	}
	return &model.Bounds{Min: minV, Max: maxV}
}

// Coercion of loosely typed reply values

var (
	leadingNumberRe = regexp.MustCompile(`^-?\d+(?:[.,]\d+)?`)

	relativeAliases = map[string]string{
		"today":        model.RelativeToday,
		"tonight":      model.RelativeToday,
		"tomorrow":     model.RelativeTomorrow,
		"this_weekend": model.RelativeThisWeekend,
		"weekend":      model.RelativeThisWeekend,
		"this_week":    model.RelativeThisWeek,
		"next_week":    model.RelativeNextWeek,
	}

	paceBands = map[string][2]*float64{
		"casual":   {nil, floatPtr(22)},
		"social":   {nil, floatPtr(22)},
		"moderate": {floatPtr(22), floatPtr(27)},
		"steady":   {floatPtr(22), floatPtr(27)},
		"fast":     {floatPtr(27), floatPtr(32)},
		"race":     {floatPtr(32), nil},
	}

	distanceBands = map[string][2]*float64{
		"short":   {nil, floatPtr(40)},
		"medium":  {floatPtr(40), floatPtr(80)},
		"long":    {floatPtr(80), floatPtr(120)},
		"epic":    {floatPtr(120), nil},
		"century": {floatPtr(120), nil},
	}
)

func coerceRawQuery(fields map[string]any) rawQuery {
	var raw rawQuery

	if s, ok := asString(fields["intent"]); ok {
		raw.Intent = strings.ToLower(s)
	}

	switch loc := fields["location"].(type) {
	case string:
		raw.LocationName = strings.TrimSpace(loc)
	case map[string]any:
		if s, ok := asString(loc["name"]); ok {
			raw.LocationName = s
		}
		raw.UseMyLocation = asBool(loc["useMyLocation"])
	}
	if raw.LocationName == "" && asBool(fields["useMyLocation"]) {
		raw.UseMyLocation = true
	}

	raw.RadiusKm = asFloat(fields["radius"])

	switch dr := fields["dateRange"].(type) {
	case string:
		raw.Relative = normalizeRelative(dr)
	case map[string]any:
		if s, ok := asString(dr["from"]); ok {
			raw.DateFrom = s
		}
		if s, ok := asString(dr["to"]); ok {
			raw.DateTo = s
		}
		if s, ok := asString(dr["relative"]); ok {
			raw.Relative = normalizeRelative(s)
		}
	}

	raw.PaceMin, raw.PaceMax = asBounds(fields["pace"], paceBands)
	raw.DistanceMin, raw.DistanceMax = asBounds(fields["distance"], distanceBands)

	if s, ok := asString(fields["community"]); ok {
		raw.Community = utils.Slugify(s)
	}
	if s, ok := asString(fields["chapter"]); ok {
		raw.Chapter = s
	}
	if s, ok := asString(fields["discipline"]); ok {
		if d, ok := utils.NormalizeDiscipline(s); ok {
			raw.Discipline = d
		}
	}

	return raw
}

func normalizeRelative(s string) string {
	key := strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(s, "-", " "))), "_")
	key = strings.TrimPrefix(key, "on_")
	if token, ok := relativeAliases[key]; ok {
		return token
	}
	return key
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1":
			return true
		}
	}
	return false
}

// asFloat accepts JSON numbers and numeric strings with trailing units ("25 km/h")
func asFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		m := leadingNumberRe.FindString(strings.TrimSpace(n))
		if m == "" {
			return nil
		}
		f, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func asBounds(v any, bands map[string][2]*float64) (*float64, *float64) {
	switch b := v.(type) {
	case map[string]any:
		return asFloat(b["min"]), asFloat(b["max"])
	case string:
		if band, ok := bands[strings.ToLower(strings.TrimSpace(b))]; ok {
			return copyFloat(band[0]), copyFloat(band[1])
		}
	}
	return nil, nil
}

func floatPtr(v float64) *float64 {
	return &v
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return floatPtr(*v)
}

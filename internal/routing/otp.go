package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/UnknownOlympus/hermes/internal/models"
)

// OTPPlanner implements the Planner interface against an OpenTripPlanner
// instance's plan endpoint. OTP is self-hostable, so deployments without a
// commercial routing credential can still get real transit itineraries.
type OTPPlanner struct {
	client    HTTPClient   // HTTP client for making requests
	baseURL   string       // Base URL of the OTP router, e.g. https://otp.example.com/otp/routers/default
	apiKey    string       // Optional subscription key forwarded as a header
	log       *slog.Logger // Logger for logging operations
	userAgent string
}

// HTTPClient defines the interface for making HTTP requests.
// This allows for easy mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// otpPlanResponse represents the JSON response from the OTP plan endpoint.
type otpPlanResponse struct {
	Plan struct {
		Itineraries []otpItinerary `json:"itineraries"`
	} `json:"plan"`
}

type otpItinerary struct {
	Duration  string   `json:"duration"`  // ISO-8601 duration of the whole trip
	WalkTime  string   `json:"walkTime"`  // ISO-8601 total walking duration
	StartTime string   `json:"startTime"` // RFC 3339 departure timestamp
	EndTime   string   `json:"endTime"`   // RFC 3339 arrival timestamp
	Legs      []otpLeg `json:"legs"`
}

type otpLeg struct {
	Mode       string  `json:"mode"`
	TransitLeg bool    `json:"transitLeg"`
	Route      string  `json:"route"`
	Headsign   string  `json:"headsign"`
	Duration   string  `json:"duration"`
	StartTime  string  `json:"startTime"`
	EndTime    string  `json:"endTime"`
	From       otpStop `json:"from"`
	To         otpStop `json:"to"`
}

type otpStop struct {
	Name string `json:"name"`
}

// ErrOTPMalformedResponse is returned when the OTP response cannot be decoded.
var ErrOTPMalformedResponse = errors.New("otp returned a malformed response")

// NewOTPPlanner creates a trip planner backed by an OpenTripPlanner router.
func NewOTPPlanner(baseURL, apiKey string, log *slog.Logger) *OTPPlanner {
	const timeout = 15
	return &OTPPlanner{
		client: &http.Client{
			Timeout: timeout * time.Second,
		},
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		log:       log,
		userAgent: "Hermes-Departure-Engine/1.0 (https://github.com/UnknownOlympus/hermes)",
	}
}

// NewOTPPlannerWithClient creates an OTP planner with a custom HTTP client.
// Useful for testing with mocked HTTP clients.
func NewOTPPlannerWithClient(client HTTPClient, baseURL, apiKey string, log *slog.Logger) *OTPPlanner {
	planner := NewOTPPlanner(baseURL, apiKey, log)
	planner.client = client
	return planner
}

// PlanTrip requests an itinerary arriving at the destination by arriveBy and
// normalizes the best (first) itinerary into a RouteResult.
func (p *OTPPlanner) PlanTrip(
	ctx context.Context,
	origin, destination models.Coordinates,
	arriveBy time.Time,
) (*models.RouteResult, error) {
	p.log.DebugContext(ctx, "Planning trip using OTP",
		"origin", origin, "destination", destination, "arrive_by", arriveBy)

	reqURL, err := url.Parse(p.baseURL + "/plan")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	query := reqURL.Query()
	query.Set("fromPlace", formatPlace(origin))
	query.Set("toPlace", formatPlace(destination))
	query.Set("arriveBy", "true")
	query.Set("date", arriveBy.Format("2006-01-02"))
	query.Set("time", arriveBy.Format("15:04"))
	query.Set("mode", "TRANSIT,WALK")
	query.Set("numItineraries", "1")
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute plan request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.log.ErrorContext(ctx, "OTP plan request failed", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("otp returned status %d: %s", resp.StatusCode, string(body))
	}

	var planResp otpPlanResponse
	if err = json.Unmarshal(body, &planResp); err != nil {
		p.log.ErrorContext(ctx, "Failed to parse OTP response", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrOTPMalformedResponse, err)
	}

	if len(planResp.Plan.Itineraries) == 0 {
		return nil, ErrNoItineraries
	}

	result, err := normalizeItinerary(planResp.Plan.Itineraries[0])
	if err != nil {
		return nil, err
	}

	p.log.DebugContext(ctx, "OTP itinerary normalized",
		"duration_min", result.DurationMinutes, "legs", len(result.Legs))
	return result, nil
}

// formatPlace renders coordinates as the "lat,lon" pair OTP expects.
func formatPlace(c models.Coordinates) string {
	return strconv.FormatFloat(c.Latitude, 'f', 6, 64) + "," + strconv.FormatFloat(c.Longitude, 'f', 6, 64)
}

// normalizeItinerary converts the backend's first itinerary into the engine's
// route model: ISO-8601 durations become minutes, each leg is classified as a
// continuous walk or a timed transit ride, and the nearest stop is derived
// from the walk time to the first transit leg.
func normalizeItinerary(it otpItinerary) (*models.RouteResult, error) {
	total, err := parseISODuration(it.Duration)
	if err != nil {
		return nil, fmt.Errorf("itinerary duration: %w", err)
	}

	walk, err := parseISODuration(it.WalkTime)
	if err != nil {
		return nil, fmt.Errorf("itinerary walk time: %w", err)
	}

	departure, err := time.Parse(time.RFC3339, it.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: bad start time %q", ErrOTPMalformedResponse, it.StartTime)
	}
	arrival, err := time.Parse(time.RFC3339, it.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%w: bad end time %q", ErrOTPMalformedResponse, it.EndTime)
	}

	legs := make([]models.RouteLeg, 0, len(it.Legs))
	for _, leg := range it.Legs {
		normalized, legErr := normalizeLeg(leg)
		if legErr != nil {
			return nil, legErr
		}
		legs = append(legs, normalized)
	}

	result := &models.RouteResult{
		DurationMinutes: durationMinutes(total),
		DepartureTime:   departure,
		ArrivalTime:     arrival,
		WalkTimeMinutes: durationMinutes(walk),
		Legs:            legs,
		NearestStop:     deriveNearestStop(it, legs),
	}
	return result, nil
}

func normalizeLeg(leg otpLeg) (models.RouteLeg, error) {
	start, err := time.Parse(time.RFC3339, leg.StartTime)
	if err != nil {
		return models.RouteLeg{}, fmt.Errorf("%w: bad leg start time %q", ErrOTPMalformedResponse, leg.StartTime)
	}
	end, err := time.Parse(time.RFC3339, leg.EndTime)
	if err != nil {
		return models.RouteLeg{}, fmt.Errorf("%w: bad leg end time %q", ErrOTPMalformedResponse, leg.EndTime)
	}

	normalized := models.RouteLeg{
		Mode:          classifyMode(leg),
		DepartureTime: start,
		ArrivalTime:   end,
		FromStop:      leg.From.Name,
		ToStop:        leg.To.Name,
	}
	if normalized.Mode != models.ModeWalk {
		normalized.Line = leg.Route
		normalized.Direction = leg.Headsign
	}
	return normalized, nil
}

// classifyMode maps the backend's mode field onto the engine's transport
// modes. Unrecognized timed modes default to bus.
func classifyMode(leg otpLeg) models.TransportMode {
	mode := strings.ToUpper(leg.Mode)
	if !leg.TransitLeg || mode == "WALK" {
		return models.ModeWalk
	}

	switch mode {
	case "BUS", "TROLLEYBUS", "COACH":
		return models.ModeBus
	case "RAIL", "TRAIN":
		return models.ModeTrain
	case "TRAM", "CABLE_CAR":
		return models.ModeTram
	case "SUBWAY", "METRO":
		return models.ModeMetro
	case "FERRY":
		return models.ModeFerry
	default:
		return models.ModeBus
	}
}

// deriveNearestStop builds the nearest-stop summary from the walk leg that
// precedes the first transit leg. The distance is an estimate from the walk
// duration at an assumed average walking speed, since the backend does not
// report the actual walking distance.
func deriveNearestStop(it otpItinerary, legs []models.RouteLeg) models.NearestStop {
	walkMinutes := 0
	for _, leg := range legs {
		if leg.Mode != models.ModeWalk {
			return models.NearestStop{
				Name:            leg.FromStop,
				WalkTimeMinutes: walkMinutes,
				DistanceMeters:  float64(walkMinutes) * walkSpeedMetersPerMinute,
			}
		}
		walkMinutes += durationMinutes(leg.ArrivalTime.Sub(leg.DepartureTime))
	}

	// Walk-only itinerary: there is no boarding stop.
	walk, err := parseISODuration(it.WalkTime)
	if err != nil {
		walk = 0
	}
	minutes := durationMinutes(walk)
	return models.NearestStop{
		Name:            "Unknown",
		WalkTimeMinutes: minutes,
		DistanceMeters:  float64(minutes) * walkSpeedMetersPerMinute,
	}
}

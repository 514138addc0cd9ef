package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ridequery/internal/config"
)

// NominatimProvider geocodes against an OpenStreetMap Nominatim server
type NominatimProvider struct {
	baseURL      string
	userAgent    string
	countryCodes string
	client       *http.Client
	limiter      *rate.Limiter
}

type nominatimAddress struct {
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	Municipality string `json:"municipality"`
}

type nominatimResponse struct {
	DisplayName string           `json:"display_name"`
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	Address     nominatimAddress `json:"address"`
	Error       string           `json:"error,omitempty"`
}

// NewNominatimProvider creates a Nominatim client limited to the configured request rate
func NewNominatimProvider(cfg config.GeocoderConfig) *NominatimProvider {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 1
	}
	return &NominatimProvider{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:    cfg.UserAgent,
		countryCodes: cfg.CountryCodes,
		client:       &http.Client{Timeout: 10 * time.Second},
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// LookupName returns the best single match for a place name
func (p *NominatimProvider) LookupName(ctx context.Context, name string) (*GeoPoint, error) {
	params := url.Values{}
	params.Add("q", name)
	params.Add("format", "json")
	params.Add("addressdetails", "1")
	params.Add("limit", "1")
	if p.countryCodes != "" {
		params.Add("countrycodes", p.countryCodes)
	}

	var results []nominatimResponse
	if err := p.get(ctx, "/search", params, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	best := results[0]
	lat, errLat := strconv.ParseFloat(best.Lat, 64)
	lng, errLng := strconv.ParseFloat(best.Lon, 64)
	if errLat != nil || errLng != nil {
		return nil, fmt.Errorf("invalid coordinates %q,%q", best.Lat, best.Lon)
	}

	label := pickCity(best.Address)
	if label == "" {
		// A match without a settlement (a lake, a region): label it as the user named it
		label = name
	}

	return &GeoPoint{Lat: lat, Lng: lng, CityLabel: label}, nil
}

// LookupCoordinates returns the settlement containing the coordinates
func (p *NominatimProvider) LookupCoordinates(ctx context.Context, lat, lng float64) (*GeoPlace, error) {
	params := url.Values{}
	params.Add("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Add("lon", strconv.FormatFloat(lng, 'f', 6, 64))
	params.Add("format", "json")
	params.Add("addressdetails", "1")
	params.Add("zoom", "10")

	var result nominatimResponse
	if err := p.get(ctx, "/reverse", params, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, nil
	}

	label := pickCity(result.Address)
	if label == "" {
		return nil, nil
	}
	return &GeoPlace{CityLabel: label}, nil
}

func (p *NominatimProvider) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := fmt.Sprintf("%s%s?%s", p.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("nominatim request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nominatim upstream error: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode nominatim payload: %w", err)
	}
	return nil
}

func pickCity(address nominatimAddress) string {
	if address.City != "" {
		return address.City
	}
	if address.Town != "" {
		return address.Town
	}
	if address.Village != "" {
		return address.Village
	}
	return address.Municipality
}

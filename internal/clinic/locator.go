package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/careline/careline/internal/config"
)

var (
	// ErrLocationNotFound is returned when the geocoder has no match for the location
	ErrLocationNotFound = errors.New("clinic: location not found")
	// ErrUpstream wraps failures talking to the Maps APIs
	ErrUpstream = errors.New("clinic: maps api unavailable")
)

// Place is one nearby facility
type Place struct {
	Name        string
	Address     string
	Rating      float64
	RatingCount int
	OpenNow     *bool
	Types       []string
}

// Locator looks up facilities near a named location
type Locator struct {
	BaseURL      string
	APIKey       string
	RadiusMeters int
	MaxResults   int
	HTTPClient   *http.Client
}

// NewLocator creates a locator from cfg
func NewLocator(cfg config.ClinicConfig) *Locator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Locator{
		BaseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:       cfg.APIKey,
		RadiusMeters: cfg.RadiusMeters,
		MaxResults:   cfg.MaxResults,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

type nearbyResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Name             string   `json:"name"`
		Vicinity         string   `json:"vicinity"`
		FormattedAddress string   `json:"formatted_address"`
		Rating           float64  `json:"rating"`
		UserRatingsTotal int      `json:"user_ratings_total"`
		Types            []string `json:"types"`
		OpeningHours     *struct {
			OpenNow *bool `json:"open_now"`
		} `json:"opening_hours"`
	} `json:"results"`
}

// Search geocodes location and lists facilities of kind around it
func (l *Locator) Search(ctx context.Context, location string, kind Kind) ([]Place, error) {
	var geo geocodeResponse
	if err := l.get(ctx, "/geocode/json", url.Values{"address": {location}}, &geo); err != nil {
		return nil, err
	}
	switch geo.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrLocationNotFound
	default:
		return nil, fmt.Errorf("%w: geocode status %s: %s", ErrUpstream, geo.Status, geo.ErrorMessage)
	}
	if len(geo.Results) == 0 {
		return nil, ErrLocationNotFound
	}
	loc := geo.Results[0].Geometry.Location

	params := url.Values{
		"location": {strconv.FormatFloat(loc.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(loc.Lng, 'f', -1, 64)},
		"radius":   {strconv.Itoa(l.RadiusMeters)},
		"type":     {string(kind)},
	}
	var nearby nearbyResponse
	if err := l.get(ctx, "/place/nearbysearch/json", params, &nearby); err != nil {
		return nil, err
	}
	switch nearby.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: places status %s: %s", ErrUpstream, nearby.Status, nearby.ErrorMessage)
	}

	places := make([]Place, 0, len(nearby.Results))
	for _, r := range nearby.Results {
		if l.MaxResults > 0 && len(places) >= l.MaxResults {
			break
		}
		p := Place{
			Name:        r.Name,
			Address:     r.Vicinity,
			Rating:      r.Rating,
			RatingCount: r.UserRatingsTotal,
			Types:       r.Types,
		}
		if p.Address == "" {
			p.Address = r.FormattedAddress
		}
		if r.OpeningHours != nil {
			p.OpenNow = r.OpeningHours.OpenNow
		}
		places = append(places, p)
	}
	return places, nil
}

func (l *Locator) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", l.APIKey)
	reqURL := l.BaseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", ErrUpstream, err)
	}

	resp, err := l.HTTPClient.Do(req)
	if err != nil {
		// the URL carries the API key, so only the cause is reported
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("%w: request to %s failed: %v", ErrUpstream, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s returned status %d", ErrUpstream, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v", ErrUpstream, path, err)
	}
	return nil
}

// Answer produces the chat reply for a detected facility search. Only upstream
// failures are returned as errors; unknown locations and empty results yield a
// helpful reply.
func (l *Locator) Answer(ctx context.Context, req Request) (string, error) {
	if req.NearMe {
		return askForLocation(), nil
	}
	if req.Location == "" {
		return missingLocation(req.Kind), nil
	}

	places, err := l.Search(ctx, req.Location, req.Kind)
	if errors.Is(err, ErrLocationNotFound) {
		return notFound(req.Kind, req.Location), nil
	}
	if err != nil {
		return "", err
	}
	if len(places) == 0 {
		return notFound(req.Kind, req.Location), nil
	}
	return formatPlaces(places, req.Kind, req.Location), nil
}

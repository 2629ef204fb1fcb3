package clinic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/careline/careline/internal/config"
)

type mapsStub struct {
	geocode string
	places  string
	status  int

	mu          sync.Mutex
	placesQuery string
	calls       atomic.Int32
}

func (s *mapsStub) lastPlacesQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.placesQuery
}

func (s *mapsStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		if r.URL.Query().Get("key") != "maps-key" {
			t.Errorf("missing api key on %s", r.URL.Path)
		}
		if s.status != 0 {
			w.WriteHeader(s.status)
			return
		}
		switch r.URL.Path {
		case "/geocode/json":
			w.Write([]byte(s.geocode))
		case "/place/nearbysearch/json":
			s.mu.Lock()
			s.placesQuery = r.URL.RawQuery
			s.mu.Unlock()
			w.Write([]byte(s.places))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newLocator(url string) *Locator {
	return NewLocator(config.ClinicConfig{
		Enabled:      true,
		APIKey:       "maps-key",
		BaseURL:      url + "/",
		RadiusMeters: 5000,
		MaxResults:   2,
		Timeout:      5 * time.Second,
	})
}

const geocodeOK = `{"status":"OK","results":[{"geometry":{"location":{"lat":41.8781,"lng":-87.6298}}}]}`

func TestLocator_Search(t *testing.T) {
	stub := &mapsStub{
		geocode: geocodeOK,
		places: `{"status":"OK","results":[
			{"name":"Mercy Hospital","vicinity":"2525 S Michigan Ave","rating":4.2,"user_ratings_total":310,"opening_hours":{"open_now":true}},
			{"name":"Northwestern","formatted_address":"251 E Huron St","rating":0},
			{"name":"Third","vicinity":"x"}]}`,
	}
	srv := stub.server(t)

	places, err := newLocator(srv.URL).Search(context.Background(), "Chicago", KindHospital)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(places) != 2 {
		t.Fatalf("len(places) = %d, want MaxResults 2", len(places))
	}
	if places[0].Name != "Mercy Hospital" || places[0].OpenNow == nil || !*places[0].OpenNow {
		t.Errorf("places[0] = %+v", places[0])
	}
	if places[1].Address != "251 E Huron St" {
		t.Errorf("formatted_address fallback not used: %+v", places[1])
	}
	for _, want := range []string{"type=hospital", "radius=5000", "location=41.8781%2C-87.6298"} {
		if !strings.Contains(stub.lastPlacesQuery(), want) {
			t.Errorf("places query %q missing %q", stub.lastPlacesQuery(), want)
		}
	}
}

func TestLocator_SearchErrors(t *testing.T) {
	t.Run("unknown location", func(t *testing.T) {
		srv := (&mapsStub{geocode: `{"status":"ZERO_RESULTS","results":[]}`}).server(t)
		_, err := newLocator(srv.URL).Search(context.Background(), "Atlantis", KindHospital)
		if !errors.Is(err, ErrLocationNotFound) {
			t.Errorf("err = %v, want ErrLocationNotFound", err)
		}
	})

	t.Run("request denied", func(t *testing.T) {
		srv := (&mapsStub{geocode: `{"status":"REQUEST_DENIED","error_message":"bad key"}`}).server(t)
		_, err := newLocator(srv.URL).Search(context.Background(), "Chicago", KindHospital)
		if !errors.Is(err, ErrUpstream) {
			t.Errorf("err = %v, want ErrUpstream", err)
		}
	})

	t.Run("http error", func(t *testing.T) {
		srv := (&mapsStub{status: http.StatusInternalServerError}).server(t)
		_, err := newLocator(srv.URL).Search(context.Background(), "Chicago", KindHospital)
		if !errors.Is(err, ErrUpstream) {
			t.Errorf("err = %v, want ErrUpstream", err)
		}
		if strings.Contains(err.Error(), "maps-key") {
			t.Errorf("error leaks api key: %v", err)
		}
	})

	t.Run("no places", func(t *testing.T) {
		srv := (&mapsStub{geocode: geocodeOK, places: `{"status":"ZERO_RESULTS","results":[]}`}).server(t)
		places, err := newLocator(srv.URL).Search(context.Background(), "Chicago", KindDentist)
		if err != nil || len(places) != 0 {
			t.Errorf("got (%v, %v), want empty result", places, err)
		}
	})
}

func TestLocator_Answer(t *testing.T) {
	stub := &mapsStub{
		geocode: geocodeOK,
		places:  `{"status":"OK","results":[{"name":"Walgreens","vicinity":"1 State St","rating":3.9,"user_ratings_total":12}]}`,
	}
	srv := stub.server(t)
	l := newLocator(srv.URL)
	ctx := context.Background()

	answer, err := l.Answer(ctx, Request{Kind: KindPharmacy, Location: "Chicago"})
	if err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	for _, want := range []string{"Pharmacies near Chicago", "1. Walgreens", "1 State St", "3.9/5", "(12 reviews)"} {
		if !strings.Contains(answer, want) {
			t.Errorf("answer missing %q:\n%s", want, answer)
		}
	}

	calls := stub.calls.Load()
	answer, err = l.Answer(ctx, Request{Kind: KindPharmacy, NearMe: true})
	if err != nil || !strings.Contains(answer, "your location") {
		t.Errorf("near-me answer = (%q, %v)", answer, err)
	}
	answer, err = l.Answer(ctx, Request{Kind: KindDentist})
	if err != nil || !strings.Contains(answer, "looking for dentists") {
		t.Errorf("missing-location answer = (%q, %v)", answer, err)
	}
	if stub.calls.Load() != calls {
		t.Error("answers without a location must not call the maps api")
	}
}

func TestLocator_AnswerNotFound(t *testing.T) {
	srv := (&mapsStub{geocode: `{"status":"ZERO_RESULTS"}`}).server(t)
	answer, err := newLocator(srv.URL).Answer(context.Background(), Request{Kind: KindHospital, Location: "Nowhere"})
	if err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	if !strings.Contains(answer, "couldn't find any hospitals near Nowhere") {
		t.Errorf("answer = %q", answer)
	}
}

func TestLocator_AnswerUpstreamError(t *testing.T) {
	srv := (&mapsStub{status: http.StatusBadGateway}).server(t)
	_, err := newLocator(srv.URL).Answer(context.Background(), Request{Kind: KindHospital, Location: "Chicago"})
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("err = %v, want ErrUpstream", err)
	}
}

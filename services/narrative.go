package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Narrator turns coordinates into a human readable place description.
type Narrator interface {
	NameLocation(ctx context.Context, lat, lng float64) (string, error)
}

// FallbackLocationName is used whenever the narrator fails or times out.
func FallbackLocationName(lat, lng float64) string {
	return fmt.Sprintf("Location (%.4f, %.4f)", lat, lng)
}

const defaultGeocodingURL = "https://maps.googleapis.com/maps/api/geocode/json"

type GeocodingResponse struct {
	Results []struct {
		AddressComponents []struct {
			LongName  string   `json:"long_name"`
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
		FormattedAddress string   `json:"formatted_address"`
		Types            []string `json:"types"`
	} `json:"results"`
	Status string `json:"status"`
}

// GeocodingNarrator names locations with the Google reverse geocoding API.
type GeocodingNarrator struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

func NewGeocodingNarrator(apiKey string) *GeocodingNarrator {
	return &GeocodingNarrator{
		APIKey:  apiKey,
		BaseURL: defaultGeocodingURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *GeocodingNarrator) NameLocation(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("latlng", fmt.Sprintf("%f,%f", lat, lng))
	q.Set("key", n.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	response, err := n.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error fetching geocoding data: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %v", response.StatusCode)
	}

	var geocodingResponse GeocodingResponse
	if err := json.NewDecoder(response.Body).Decode(&geocodingResponse); err != nil {
		return "", fmt.Errorf("error decoding JSON response: %v", err)
	}
	if geocodingResponse.Status != "OK" || len(geocodingResponse.Results) == 0 {
		return "", fmt.Errorf("geocoding status %q", geocodingResponse.Status)
	}

	first := geocodingResponse.Results[0]
	var landmark, locality string
	if len(first.AddressComponents) > 0 {
		landmark = first.AddressComponents[0].LongName
	}
	for _, result := range geocodingResponse.Results {
		for _, component := range result.AddressComponents {
			if locality == "" && contains(component.Types, "locality") {
				locality = component.LongName
			}
		}
	}
	if landmark != "" && locality != "" && landmark != locality {
		return fmt.Sprintf("Near %s, %s", landmark, locality), nil
	}
	return first.FormattedAddress, nil
}

// unavailableNarrator always fails so the coordinate fallback is used.
type unavailableNarrator struct{}

// NewUnavailableNarrator is wired when no maps API key is configured.
func NewUnavailableNarrator() Narrator {
	return unavailableNarrator{}
}

func (unavailableNarrator) NameLocation(ctx context.Context, lat, lng float64) (string, error) {
	return "", fmt.Errorf("location narration is not configured")
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/example/shuttle-tracking/internal/location"
	"github.com/example/shuttle-tracking/internal/models"
)

// APIClient is the pull side of the rider client: booking list and
// current-location fetches over the REST contract.
type APIClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{BaseURL: baseURL, Token: token, HTTP: &http.Client{Timeout: 5 * time.Second}}
}

func (c *APIClient) MyBookings(ctx context.Context) ([]models.Booking, error) {
	var out []models.Booking
	if err := c.get(ctx, "/api/bookings/my", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *APIClient) CurrentLocation(ctx context.Context, driverID int64) (*models.DriverLocation, error) {
	var out models.DriverLocation
	err := c.get(ctx, "/api/driver/current-location/"+strconv.FormatInt(driverID, 10), &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return location.ErrNoLocation
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

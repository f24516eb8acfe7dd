package wearable

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrDeviceUnauthorized means the provider rejected the device's token.
var ErrDeviceUnauthorized = errors.New("wearable provider rejected device credentials")

// Provider fetches readings recorded after since.
type Provider interface {
	FetchReadings(ctx context.Context, d *Device, since time.Time) ([]ReadingInput, error)
}

// ProviderClient talks to the aggregation API that fronts the vendor
// clouds. Devices authenticate with their own bearer token.
type ProviderClient struct {
	client *resty.Client
}

func NewProviderClient(baseURL string) *ProviderClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &ProviderClient{client: client}
}

type readingsResponse struct {
	Readings []ReadingInput `json:"readings"`
}

func (p *ProviderClient) FetchReadings(ctx context.Context, d *Device, since time.Time) ([]ReadingInput, error) {
	var out readingsResponse
	req := p.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"provider": d.Provider,
			"device":   d.DeviceIdentifier,
		}).
		SetQueryParam("since", since.UTC().Format(time.RFC3339)).
		SetResult(&out)
	if d.AccessToken != nil {
		req.SetAuthToken(*d.AccessToken)
	}

	resp, err := req.Get("/v1/{provider}/devices/{device}/readings")
	if err != nil {
		return nil, fmt.Errorf("fetch %s readings: %w", d.Provider, err)
	}
	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return nil, ErrDeviceUnauthorized
	case resp.IsError():
		return nil, fmt.Errorf("fetch %s readings: status %d", d.Provider, resp.StatusCode())
	}
	return out.Readings, nil
}

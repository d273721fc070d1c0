package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// CustomerContact is the subset of a POS customer profile the pipeline needs.
type CustomerContact struct {
	Name  string
	Phone string
}

// providerClient fetches customer profiles from the POS APIs. Payment webhooks
// carry a customer id but rarely the phone number, so ingestion follows up
// with one read per event. Rate limited per provider guidance.
type providerClient struct {
	baseURL     string
	accessToken string
	http        *http.Client
	limiter     <-chan time.Time
}

func newProviderClient(envBaseKey, defaultBase, accessToken string) (*providerClient, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.New("integration access token is empty")
	}
	baseURL := strings.TrimSpace(os.Getenv(envBaseKey))
	if baseURL == "" {
		baseURL = defaultBase
	}
	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("POS_API_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &providerClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		http:        &http.Client{Timeout: 30 * time.Second},
		limiter:     time.Tick(interval),
	}, nil
}

func (c *providerClient) getJSON(ctx context.Context, path string, dest interface{}) error {
	<-c.limiter
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pos api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, dest)
}

// FetchSquareCustomer reads one customer profile from the Square Customers
// API using the integration's OAuth token.
func FetchSquareCustomer(ctx context.Context, accessToken, customerId string) (*CustomerContact, error) {
	client, err := newProviderClient("SQUARE_API_BASE_URL", "https://connect.squareup.com", accessToken)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Customer squareCustomer `json:"customer"`
	}
	if err := client.getJSON(ctx, "/v2/customers/"+customerId, &parsed); err != nil {
		return nil, err
	}
	return &CustomerContact{
		Name:  strings.TrimSpace(parsed.Customer.GivenName + " " + parsed.Customer.FamilyName),
		Phone: parsed.Customer.PhoneNumber,
	}, nil
}

// FetchCloverCustomer reads one customer profile from the Clover merchant
// API, expanding phone numbers.
func FetchCloverCustomer(ctx context.Context, accessToken, merchantId, customerId string) (*CustomerContact, error) {
	client, err := newProviderClient("CLOVER_API_BASE_URL", "https://api.clover.com", accessToken)
	if err != nil {
		return nil, err
	}

	var parsed cloverCustomer
	path := fmt.Sprintf("/v3/merchants/%s/customers/%s?expand=phoneNumbers", merchantId, customerId)
	if err := client.getJSON(ctx, path, &parsed); err != nil {
		return nil, err
	}

	contact := &CustomerContact{
		Name: strings.TrimSpace(parsed.FirstName + " " + parsed.LastName),
	}
	if len(parsed.PhoneNumbers) > 0 {
		contact.Phone = parsed.PhoneNumbers[0].PhoneNumber
	}
	return contact, nil
}

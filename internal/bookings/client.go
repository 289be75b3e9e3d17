package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"mailinvoice/internal"
	"mailinvoice/internal/config"
	"mailinvoice/internal/util"
)

var errNotFound = errors.New("not found")

// Client reads bookings from the booking system's JSON API.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

func NewClient(cfg config.Config) *Client {
	rps := cfg.BookingAPIRateLimitRPS
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.BookingAPITimeoutMs) * time.Millisecond},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (c *Client) GetBooking(ctx context.Context, id int64) (*internal.Booking, error) {
	var dto bookingDTO
	if err := c.getOne(ctx, "bookings/"+strconv.FormatInt(id, 10), &dto); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	b := dto.toBooking()
	return &b, nil
}

func (c *Client) GetAppointment(ctx context.Context, id int64) (*internal.Appointment, error) {
	var dto appointmentDTO
	if err := c.getOne(ctx, "appointments/"+strconv.FormatInt(id, 10), &dto); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	a := dto.toAppointment()
	return &a, nil
}

func (c *Client) GetCustomer(ctx context.Context, id int64) (*internal.Customer, error) {
	var dto customerDTO
	if err := c.getOne(ctx, "customers/"+strconv.FormatInt(id, 10), &dto); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	cust := dto.toCustomer()
	return &cust, nil
}

func (c *Client) GetStaff(ctx context.Context, id int64) (*internal.Staff, error) {
	var dto staffDTO
	if err := c.getOne(ctx, "staff/"+strconv.FormatInt(id, 10), &dto); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	s := dto.toStaff()
	return &s, nil
}

func (c *Client) RecentBookingsByEmail(ctx context.Context, email string, limit int) ([]internal.Booking, error) {
	body, err := c.fetchJSON(ctx, "bookings", map[string]string{
		"customer_email": strings.ToLower(strings.TrimSpace(email)),
		"order":          "desc",
		"per_page":       strconv.Itoa(limit),
	})
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var dtos []bookingDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, err
	}
	out := make([]internal.Booking, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, dto.toBooking())
	}
	return out, nil
}

func (c *Client) ListAppointments(ctx context.Context) ([]internal.Appointment, error) {
	body, err := c.fetchJSON(ctx, "appointments", map[string]string{})
	if err != nil {
		return nil, err
	}
	var dtos []appointmentDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, err
	}
	out := make([]internal.Appointment, 0, len(dtos))
	for _, dto := range dtos {
		if strings.TrimSpace(dto.Name) == "" {
			continue
		}
		out = append(out, dto.toAppointment())
	}
	return out, nil
}

func (c *Client) getOne(ctx context.Context, endpoint string, out any) error {
	body, err := c.fetchJSON(ctx, endpoint, map[string]string{})
	if err != nil {
		return err
	}
	if len(body) == 0 || string(body) == "null" {
		return errNotFound
	}
	return json.Unmarshal(body, out)
}

func (c *Client) fetchJSON(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	baseURL := strings.TrimRight(c.cfg.BookingAPIBaseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		if token := strings.TrimSpace(c.cfg.BookingAPIToken); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			return nil, errNotFound
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < 5 {
				lastErr = fmt.Errorf("booking api status %d", resp.StatusCode)
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				continue
			}
			return nil, fmt.Errorf("booking api error: status=%d body=%s", resp.StatusCode, string(body))
		}

		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, err
		}
		if !apiResp.Success {
			return nil, fmt.Errorf("booking api unsuccessful: %s", util.FirstNonEmpty(apiResp.Message, string(apiResp.Errors)))
		}
		return apiResp.Data, nil
	}

	if lastErr == nil {
		lastErr = errors.New("booking api request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

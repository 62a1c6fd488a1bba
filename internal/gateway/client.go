package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/legalconnect/scheduler/internal/model"
	"github.com/legalconnect/scheduler/pkg/circuitbreaker"
	apperrors "github.com/legalconnect/scheduler/pkg/errors"
	"github.com/legalconnect/scheduler/pkg/logger"
	"github.com/legalconnect/scheduler/pkg/metrics"
)

type ClientConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewClient(cfg ClientConfig, log *logger.Logger, m *metrics.Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker: circuitbreaker.New(circuitbreaker.Settings{
			Name:        "appointment-backend",
			MaxFailures: 5,
			Timeout:     15 * time.Second,
		}),
		log:     log.WithComponent("gateway"),
		metrics: m,
	}
}

func (c *Client) BusyIntervals(ctx context.Context, providerID, requesterID int64, date string) ([]model.BusyInterval, error) {
	path := fmt.Sprintf("/appointments/slots?providerId=%d&date=%s", providerID, date)
	if requesterID > 0 {
		path += fmt.Sprintf("&requesterId=%d", requesterID)
	}
	var intervals []model.BusyInterval
	if err := c.do(ctx, http.MethodGet, path, nil, &intervals, "busy_intervals"); err != nil {
		return nil, err
	}
	return intervals, nil
}

func (c *Client) Appointments(ctx context.Context, providerID int64) ([]model.Appointment, error) {
	var appts []model.Appointment
	path := fmt.Sprintf("/appointments/provider/%d", providerID)
	if err := c.do(ctx, http.MethodGet, path, nil, &appts, "appointments"); err != nil {
		return nil, err
	}
	return appts, nil
}

func (c *Client) CreateAppointment(ctx context.Context, req *model.BookingRequest) (*model.Appointment, error) {
	var apt model.Appointment
	if err := c.do(ctx, http.MethodPost, "/appointments/request", req, &apt, "create_appointment"); err != nil {
		return nil, err
	}
	return &apt, nil
}

func (c *Client) SetAppointmentStatus(ctx context.Context, id int64, status model.AppointmentStatus) (*model.Appointment, error) {
	body := map[string]model.AppointmentStatus{"status": status}
	var apt model.Appointment
	path := fmt.Sprintf("/appointments/%d/status", id)
	if err := c.do(ctx, http.MethodPost, path, body, &apt, "set_status"); err != nil {
		return nil, err
	}
	return &apt, nil
}

func (c *Client) RescheduleAppointment(ctx context.Context, id int64, newDate, newTime string) error {
	body := map[string]string{"date": newDate, "time": newTime}
	path := fmt.Sprintf("/appointments/%d/reschedule", id)
	return c.do(ctx, http.MethodPut, path, body, nil, "reschedule")
}

func (c *Client) CancelAppointment(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/appointments/%d/cancel", id)
	return c.do(ctx, http.MethodPost, path, nil, nil, "cancel")
}

func (c *Client) CaseByID(ctx context.Context, id int64) (*model.CaseContext, error) {
	var cc model.CaseContext
	path := fmt.Sprintf("/cases/%d", id)
	if err := c.do(ctx, http.MethodGet, path, nil, &cc, "case_by_id"); err != nil {
		return nil, err
	}
	return &cc, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.NewTransient("request rate limited", err)
	}

	start := time.Now()
	err := c.breaker.Execute(func() error {
		return c.roundTrip(ctx, method, path, body, out)
	})
	c.observe(op, start, err)

	if err == circuitbreaker.ErrOpen {
		return apperrors.NewTransient("appointment backend unavailable", err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperrors.NewInternal(err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewTransient("appointment backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.statusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewTransient("malformed backend response", err)
	}
	return nil
}

func (c *Client) statusError(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &payload)
	cause := fmt.Errorf("backend returned %d: %s", resp.StatusCode, payload.Message)

	switch resp.StatusCode {
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return apperrors.NewConflict("", cause)
	case http.StatusForbidden, http.StatusUnauthorized:
		return apperrors.NewPermission("not allowed", cause)
	case http.StatusNotFound:
		return apperrors.NewNotFound("resource", cause)
	case http.StatusBadRequest:
		return apperrors.NewValidation(payload.Message, cause)
	default:
		return apperrors.NewTransient("appointment backend error", cause)
	}
}

func (c *Client) observe(op string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.GatewayCalls.WithLabelValues(op, status).Inc()
	c.metrics.GatewayLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

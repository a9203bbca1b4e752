package distlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal distline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Schedule represents a distribution line.
type Schedule struct {
	ID               int64   `json:"id"`
	GroupID          string  `json:"group_id"`
	DriverID         *string `json:"driver_id,omitempty"`
	ScheduledDate    *string `json:"scheduled_date,omitempty"`
	ProductionNumber *int64  `json:"production_number,omitempty"`
	ProducedAt       *string `json:"produced_at,omitempty"`
	Pinned           bool    `json:"pinned"`
}

// Item represents an order or a return (partial).
type Item struct {
	Variant           string  `json:"variant"`
	ID                int64   `json:"id"`
	CustomerName      string  `json:"customer_name"`
	City              string  `json:"city"`
	Amount            string  `json:"amount"`
	AgentID           string  `json:"agent_id"`
	PrimaryScheduleID *int64  `json:"primary_schedule_id,omitempty"`
	CompletedAt       *string `json:"completed_at,omitempty"`
	CancelledAt       *string `json:"cancelled_at,omitempty"`
	Modified          bool    `json:"modified"`
}

// NewItem is the payload for CreateItem.
type NewItem struct {
	CustomerName      string `json:"customer_name"`
	City              string `json:"city"`
	Address           string `json:"address,omitempty"`
	Phone             string `json:"phone,omitempty"`
	Remark            string `json:"remark,omitempty"`
	Amount            string `json:"amount"`
	AgentID           string `json:"agent_id,omitempty"`
	PrimaryScheduleID *int64 `json:"primary_schedule_id,omitempty"`
}

// Aggregate is the computed summary of a schedule (partial).
type Aggregate struct {
	UniqueCustomers  int    `json:"unique_customers"`
	OrderTotal       string `json:"order_total"`
	ReturnTotal      string `json:"return_total"`
	CompletedOrders  int    `json:"completed_orders"`
	TotalOrders      int    `json:"total_orders"`
	CompletedReturns int    `json:"completed_returns"`
	TotalReturns     int    `json:"total_returns"`
	AnyTransferred   bool   `json:"any_transferred"`
	AnyModified      bool   `json:"any_modified"`
}

type ScheduleView struct {
	Schedule  Schedule  `json:"schedule"`
	State     string    `json:"state"`
	Aggregate Aggregate `json:"aggregate"`
}

type Zone struct {
	Index      int    `json:"index"`
	ScheduleID *int64 `json:"schedule_id,omitempty"`
	Pinned     bool   `json:"pinned"`
}

// Board is the caller's view of zones, dated lines and the pool.
type Board struct {
	Zones []struct {
		Index  int           `json:"index"`
		Pinned bool          `json:"pinned"`
		Line   *ScheduleView `json:"line,omitempty"`
	} `json:"zones"`
	Schedules []ScheduleView `json:"schedules"`
	Pool      []struct {
		Item Item `json:"item"`
	} `json:"pool"`
}

type CascadeWarning struct {
	Item struct {
		Variant string `json:"variant"`
		ID      int64  `json:"id"`
	} `json:"item"`
	Message string `json:"message"`
}

type ProduceResult struct {
	Schedule  Schedule         `json:"schedule"`
	Completed int              `json:"completed"`
	Warnings  []CascadeWarning `json:"warnings"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code is taken from the error envelope
// when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Board returns the caller's board.
func (c *Client) Board(ctx context.Context) (Board, error) {
	var resp Board
	err := c.do(ctx, http.MethodGet, "board", nil, &resp)
	return resp, err
}

// Schedules lists visible schedules. An empty state lists all of them.
func (c *Client) Schedules(ctx context.Context, state string) ([]ScheduleView, error) {
	endpoint := "schedules"
	if state != "" {
		endpoint += "?state=" + url.QueryEscape(state)
	}
	var resp []ScheduleView
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateSchedule returns the open empty schedule of a group, creating one if
// needed.
func (c *Client) CreateSchedule(ctx context.Context, groupID string) (Schedule, error) {
	var resp Schedule
	err := c.do(ctx, http.MethodPost, "schedules", map[string]any{"group_id": groupID}, &resp)
	return resp, err
}

// SetScheduledDate sets or moves the date (YYYY-MM-DD). A dated schedule
// cannot be cleared.
func (c *Client) SetScheduledDate(ctx context.Context, id int64, date string) (Schedule, error) {
	var resp Schedule
	err := c.do(ctx, http.MethodPatch, schedulePath(id), map[string]any{"scheduled_date": date}, &resp)
	return resp, err
}

// Produce assigns the next production number to a schedule.
func (c *Client) Produce(ctx context.Context, id int64) (ProduceResult, error) {
	var resp ProduceResult
	err := c.do(ctx, http.MethodPost, schedulePath(id)+"/produce", nil, &resp)
	return resp, err
}

// CreateItem creates an order or a return.
func (c *Client) CreateItem(ctx context.Context, variant string, in NewItem) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPost, "items/"+url.PathEscape(variant), in, &resp)
	return resp, err
}

// MoveItem sets the primary schedule of an item. Nil returns it to the pool.
func (c *Client) MoveItem(ctx context.Context, variant string, id int64, scheduleID *int64) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPatch, itemPath(variant, id), map[string]any{"schedule_id": scheduleID}, &resp)
	return resp, err
}

// Zones refreshes and returns the zone strip.
func (c *Client) Zones(ctx context.Context) ([]Zone, error) {
	var resp struct {
		Zones []Zone `json:"zones"`
	}
	err := c.do(ctx, http.MethodGet, "zones", nil, &resp)
	return resp.Zones, err
}

// DropItem assigns an item to the schedule bound to a zone.
func (c *Client) DropItem(ctx context.Context, zone int, variant string, id int64) ([]Zone, error) {
	var resp struct {
		Zones []Zone `json:"zones"`
	}
	body := map[string]any{"variant": variant, "id": id}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("zones/%d/drop", zone), body, &resp)
	return resp.Zones, err
}

// EventsPage returns a page of events, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func schedulePath(id int64) string {
	return "schedules/" + strconv.FormatInt(id, 10)
}

func itemPath(variant string, id int64) string {
	return "items/" + url.PathEscape(variant) + "/" + strconv.FormatInt(id, 10)
}

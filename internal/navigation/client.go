package navigation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/waypoints/internal/geom"
	"github.com/banshee-data/waypoints/internal/httputil"
	"github.com/banshee-data/waypoints/internal/monitoring"
	"github.com/banshee-data/waypoints/internal/timeutil"
)

var logf = monitoring.Component("navigation")

// DefaultStatusPoll is how often WaitForResult asks for a goal's status.
const DefaultStatusPoll = 200 * time.Millisecond

// Client talks to a navigation service over HTTP:
//
//	POST {base}/goals                 {"target": StampedPose} -> {"id"}
//	GET  {base}/goals/{id}            -> {"status"}
//	GET  {base}/params/tolerances     -> Tolerances
//	PUT  {base}/params/tolerances     Tolerances -> Tolerances
type Client struct {
	base  string
	http  httputil.HTTPClient
	clock timeutil.Clock
	poll  time.Duration

	updateMu   sync.Mutex
	lastUpdate chan struct{} // closed when the most recent Update finishes
}

var (
	_ Navigator    = (*Client)(nil)
	_ Reconfigurer = (*Client)(nil)
)

// ClientOptions configures a Client. Zero values pick defaults.
type ClientOptions struct {
	HTTP       httputil.HTTPClient
	Clock      timeutil.Clock
	StatusPoll time.Duration
}

// NewClient returns a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ClientOptions) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid navigation URL %q", baseURL)
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.StatusPoll <= 0 {
		opts.StatusPoll = DefaultStatusPoll
	}
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		http:  opts.HTTP,
		clock: opts.Clock,
		poll:  opts.StatusPoll,
	}, nil
}

type sendGoalRequest struct {
	Target geom.StampedPose `json:"target"`
}

type sendGoalResponse struct {
	ID string `json:"id"`
}

type goalStatusResponse struct {
	Status GoalStatus `json:"status"`
}

func (c *Client) SendGoal(ctx context.Context, target geom.StampedPose) (Goal, error) {
	var resp sendGoalResponse
	if err := httputil.DoJSON(ctx, c.http, http.MethodPost, c.base+"/goals", sendGoalRequest{Target: target}, &resp); err != nil {
		return Goal{}, fmt.Errorf("send goal: %w", err)
	}
	if resp.ID == "" {
		return Goal{}, fmt.Errorf("send goal: service returned no goal id")
	}
	return Goal{ID: resp.ID, Target: target}, nil
}

func (c *Client) WaitForResult(ctx context.Context, goal Goal) (GoalStatus, error) {
	u := c.base + "/goals/" + url.PathEscape(goal.ID)
	for {
		var resp goalStatusResponse
		if err := httputil.DoJSON(ctx, c.http, http.MethodGet, u, nil, &resp); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("goal %s status: %w", goal.ID, err)
		}
		if resp.Status.Terminal() {
			return resp.Status, nil
		}
		if err := c.clock.SleepContext(ctx, c.poll); err != nil {
			return "", err
		}
	}
}

func (c *Client) Get(ctx context.Context) (Tolerances, error) {
	var t Tolerances
	if err := httputil.DoJSON(ctx, c.http, http.MethodGet, c.base+"/params/tolerances", nil, &t); err != nil {
		return Tolerances{}, fmt.Errorf("get tolerances: %w", err)
	}
	return t, nil
}

// Update sends the PUT from a goroutine. Updates are serialized so a restore
// issued right after an apply cannot overtake it.
func (c *Client) Update(ctx context.Context, t Tolerances, ack AckFunc) {
	// detached so a restore issued during shutdown is still sent; Flush waits for it
	ctx = context.WithoutCancel(ctx)

	c.updateMu.Lock()
	prev := c.lastUpdate
	done := make(chan struct{})
	c.lastUpdate = done
	c.updateMu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}

		var applied Tolerances
		err := httputil.DoJSON(ctx, c.http, http.MethodPut, c.base+"/params/tolerances", t, &applied)
		if err != nil {
			err = fmt.Errorf("update tolerances: %w", err)
		}
		if ack != nil {
			ack(applied, err)
		} else if err != nil {
			logf("%v", err)
		}
	}()
}

// Flush waits for the most recent Update, and so for every earlier one.
func (c *Client) Flush(ctx context.Context) error {
	c.updateMu.Lock()
	last := c.lastUpdate
	c.updateMu.Unlock()
	if last == nil {
		return nil
	}
	select {
	case <-last:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush tolerance updates: %w", ctx.Err())
	}
}

package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/decentraland/launcher/analytics/daemon"
	"github.com/decentraland/launcher/analytics/queue"
)

// DefaultEndpoint is the tracking vendor ingestion endpoint.
const DefaultEndpoint = "https://api.segment.io/v1/track"

// Config carries everything the client needs to identify events.
type Config struct {
	WriteKey        string
	AnonymousID     string
	OS              string
	LauncherVersion string
	// Endpoint overrides DefaultEndpoint, for tests.
	Endpoint string
	// ProcessDelayAfterError overrides the daemon retry backoff.
	ProcessDelayAfterError time.Duration
}

// Client stages events in the queue and leaves delivery to the send daemon.
type Client struct {
	log       *slog.Logger
	cfg       Config
	sessionID string
	queue     queue.Queue
	daemon    *daemon.Daemon
}

// NewClient builds a tracking client over the given queue and starts its
// send daemon.
func NewClient(log *slog.Logger, cfg Config, q queue.Queue) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	sender := &httpSender{
		endpoint: cfg.Endpoint,
		writeKey: cfg.WriteKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	d := daemon.New(log, q, sender, cfg.ProcessDelayAfterError)
	c := &Client{
		log:       log,
		cfg:       cfg,
		sessionID: newSessionID(),
		queue:     q,
		daemon:    d,
	}
	d.Start()
	return c
}

func newSessionID() string {
	return uuid.NewString()
}

func (c *Client) AnonymousID() string { return c.cfg.AnonymousID }

func (c *Client) SessionID() string { return c.sessionID }

// Track envelopes the event with the user identity and the standard
// properties, then enqueues it for the daemon.
func (c *Client) Track(event Event) error {
	message, err := c.trackMessage(event, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cannot serialize event %q: %w", event.Name, err)
	}
	if err := c.queue.Enqueue(message); err != nil {
		return fmt.Errorf("cannot enqueue event %q: %w", event.Name, err)
	}
	return nil
}

func (c *Client) Close(ctx context.Context) error {
	drained := c.daemon.WaitUntilEmptyOrDeadline(ctx, daemon.DefaultDrainTimeout)
	if !drained {
		c.log.Warn("analytics queue not drained before shutdown, events will be resent on next run")
	}
	c.daemon.Stop()
	return c.queue.Close()
}

// trackMessage is the vendor wire format for a single event.
type trackMessage struct {
	AnonymousID string         `json:"anonymousId"`
	Event       string         `json:"event"`
	Properties  map[string]any `json:"properties"`
	Context     map[string]any `json:"context,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

func (c *Client) trackMessage(event Event, now time.Time) (json.RawMessage, error) {
	properties := make(map[string]any, len(event.Properties)+4)
	for k, v := range event.Properties {
		properties[k] = v
	}
	properties["os"] = c.cfg.OS
	properties["launcherVersion"] = c.cfg.LauncherVersion
	properties["sessionId"] = c.sessionID
	properties["appId"] = AppID

	return json.Marshal(trackMessage{
		AnonymousID: c.cfg.AnonymousID,
		Event:       event.Name,
		Properties:  properties,
		Context:     networkContext(),
		Timestamp:   now.Format(time.RFC3339Nano),
	})
}

// PropertiesFromMessage extracts the event properties from a serialized
// track message.
func PropertiesFromMessage(message json.RawMessage) (map[string]any, error) {
	var m trackMessage
	if err := json.Unmarshal(message, &m); err != nil {
		return nil, fmt.Errorf("cannot parse track message: %w", err)
	}
	return m.Properties, nil
}

// networkContext names the active non-loopback interfaces, so events can be
// segmented by connectivity kind.
func networkContext() map[string]any {
	ifaces, err := net.Interfaces()
	if err != nil {
		return map[string]any{"network": []string{}}
	}
	names := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		names = append(names, iface.Name)
	}
	return map[string]any{"network": names}
}

// httpSender posts one message at a time to the vendor. The write key is
// the basic-auth user, per the vendor's HTTP API.
type httpSender struct {
	endpoint string
	writeKey string
	client   *http.Client
}

func (s *httpSender) Send(ctx context.Context, message json.RawMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(s.writeKey, "")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("tracking endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}

package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/epalmerini/rabbitlog/internal/config"
)

const managementPort = "15672"

// ManagementClient talks to the RabbitMQ Management HTTP API
type ManagementClient struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

type Exchange struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
	VHost      string `json:"vhost"`
}

type Queue struct {
	Name       string `json:"name"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
	Exclusive  bool   `json:"exclusive"`
	Messages   int    `json:"messages"`
	Consumers  int    `json:"consumers"`
	VHost      string `json:"vhost"`
}

type Binding struct {
	Source          string `json:"source"`
	Destination     string `json:"destination"`
	DestinationType string `json:"destination_type"`
	RoutingKey      string `json:"routing_key"`
	VHost           string `json:"vhost"`
}

// TopologyReport is what the broker currently holds for the collector's
// exchange and queue.
type TopologyReport struct {
	Exchange Exchange
	Queue    Queue
	Bindings []Binding // exchange -> queue only
}

// NewManagementClient creates a client for the broker in cfg. Without an
// explicit ManagementURL it targets http://<host>:15672/api.
func NewManagementClient(cfg config.Broker) (*ManagementClient, error) {
	baseURL := cfg.ManagementURL
	if baseURL == "" {
		host := cfg.Host
		if host == "" {
			host = "localhost"
		}
		baseURL = (&url.URL{Scheme: "http", Host: joinHost(host, managementPort), Path: "/api"}).String()
	} else if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid management URL: %w", err)
	}

	return &ManagementClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func joinHost(host, port string) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]:" + port
	}
	return host + ":" + port
}

func (c *ManagementClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: API returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *ManagementClient) GetExchange(ctx context.Context, vhost, name string) (*Exchange, error) {
	var ex Exchange
	path := fmt.Sprintf("/exchanges/%s/%s", url.PathEscape(vhost), url.PathEscape(name))
	if err := c.getJSON(ctx, path, &ex); err != nil {
		return nil, err
	}
	return &ex, nil
}

func (c *ManagementClient) GetQueue(ctx context.Context, vhost, name string) (*Queue, error) {
	var q Queue
	path := fmt.Sprintf("/queues/%s/%s", url.PathEscape(vhost), url.PathEscape(name))
	if err := c.getJSON(ctx, path, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *ManagementClient) GetBindings(ctx context.Context, vhost, exchange string) ([]Binding, error) {
	var bindings []Binding
	path := fmt.Sprintf("/exchanges/%s/%s/bindings/source",
		url.PathEscape(vhost), url.PathEscape(exchange))
	if err := c.getJSON(ctx, path, &bindings); err != nil {
		return nil, err
	}
	return bindings, nil
}

// InspectTopology fetches the exchange, the queue and the bindings between
// them. A repeated DeclareTopology must leave exactly one binding here.
func (c *ManagementClient) InspectTopology(ctx context.Context, vhost string, t config.Topology) (*TopologyReport, error) {
	ex, err := c.GetExchange(ctx, vhost, t.Exchange)
	if err != nil {
		return nil, fmt.Errorf("exchange %q: %w", t.Exchange, err)
	}
	q, err := c.GetQueue(ctx, vhost, t.Queue)
	if err != nil {
		return nil, fmt.Errorf("queue %q: %w", t.Queue, err)
	}
	all, err := c.GetBindings(ctx, vhost, t.Exchange)
	if err != nil {
		return nil, fmt.Errorf("bindings of %q: %w", t.Exchange, err)
	}

	report := &TopologyReport{Exchange: *ex, Queue: *q}
	for _, b := range all {
		if b.DestinationType == "queue" && b.Destination == t.Queue {
			report.Bindings = append(report.Bindings, b)
		}
	}
	return report, nil
}

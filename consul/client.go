// Package consul connects the engine to a Consul agent: leader
// election for the sweep scheduler and service registration for
// discovery. The engine runs fine without it, minus the sweeps.
package consul

import (
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
)

// Client wraps the agent connection the lock and registration helpers
// share.
type Client struct {
	api *consulapi.Client
}

// NewClient dials the agent at addr. Construction alone proves
// nothing; call Healthy before relying on the connection.
func NewClient(addr string) (*Client, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr

	api, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &Client{api: api}, nil
}

// Healthy confirms the agent answers and the cluster has a leader.
func (c *Client) Healthy() error {
	leader, err := c.api.Status().Leader()
	if err != nil {
		return fmt.Errorf("consul status: %w", err)
	}
	if leader == "" {
		return fmt.Errorf("consul cluster has no leader")
	}
	return nil
}

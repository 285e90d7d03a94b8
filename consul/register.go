package consul

import (
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
)

// Register announces this instance in the Consul catalog with an HTTP
// health check against the engine's health endpoint.
func (c *Client) Register(id, name, addr string, port int) error {
	reg := &consulapi.AgentServiceRegistration{
		ID:      id,
		Name:    name,
		Address: addr,
		Port:    port,
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/api/health", addr, port),
			Interval:                       "15s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "10m",
		},
	}
	return c.api.Agent().ServiceRegister(reg)
}

func (c *Client) Deregister(id string) error {
	return c.api.Agent().ServiceDeregister(id)
}

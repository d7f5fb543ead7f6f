package messaging

import (
	"time"
)

// RTTer is implemented by clients able to measure a round trip to the broker.
type RTTer interface {
	RTT() (time.Duration, error)
}

// HealthStatus describes the state of a bus connection.
type HealthStatus struct {
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latencyMs"`
	Error     string        `json:"error,omitempty"`
}

// Healthy reports whether the connection is up and answered the ping.
func (s HealthStatus) Healthy() bool {
	return s.Connected && s.Error == ""
}

// CheckClientHealth reports the connection state of client, measuring a round
// trip when the client supports it.
func CheckClientHealth(client Client) HealthStatus {
	status := HealthStatus{}

	if client == nil {
		status.Error = "client is nil"
		return status
	}

	status.Connected = client.IsConnected()
	if !status.Connected {
		status.Error = "not connected to message broker"
		return status
	}

	if r, ok := client.(RTTer); ok {
		rtt, err := r.RTT()
		if err != nil {
			status.Error = "round trip failed: " + err.Error()
			return status
		}
		status.Latency = rtt
	}

	return status
}

// Package transport defines the message contracts and client interfaces used
// to reach the grid services over the broker. Implementations live in
// infra/mqtt.
package transport

import (
	"context"
	"errors"
)

// ErrRPCTimeout is returned when a request/response exchange does not
// complete within the caller's deadline.
var ErrRPCTimeout = errors.New("transport: rpc timed out")

// PowerLimitRequest asks the power-limit grid service to cap the site's
// consumption for a bounded window.
type PowerLimitRequest struct {
	Reason      string  `json:"reason"`
	DurationMin float64 `json:"duration_min"`
	PowerCapKW  float64 `json:"power_cap_kw"`
}

// PowerLimitResponse reports whether the cap was applied and for how long.
// The service may shorten or adjust the requested window.
type PowerLimitResponse struct {
	Accepted       bool    `json:"accepted"`
	AppliedLimitKW float64 `json:"applied_limit_kw"`
	DurationMin    float64 `json:"duration_min"`
}

// PowerLimitClient issues power-limit RPCs. Call blocks until a response
// arrives or ctx expires; expiry surfaces as ErrRPCTimeout.
type PowerLimitClient interface {
	Call(ctx context.Context, req PowerLimitRequest) (PowerLimitResponse, error)
}

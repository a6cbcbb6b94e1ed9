// Package httpapi provides the HTTP REST API for running backtests, along
// with health and Prometheus metrics endpoints.
package httpapi

// ErrorResponse is the JSON body of every non-2xx response. Error holds the
// failure kind ("InvalidInput", "DataUnavailable", "DegenerateInput" or
// "Internal").
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StrategiesResponse lists the registered strategy names.
type StrategiesResponse struct {
	Strategies []string `json:"strategies"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// KindInternal labels failures outside the domain taxonomy.
const KindInternal = "Internal"

package models

import "encoding/json"

// Resource is a compute offering a provider can sell or lend. It is a
// read-only snapshot fetched on demand; freshness is the connector's
// responsibility, the core never caches it.
type Resource struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Available  bool              `json:"available"`
}

// PricingInfo is the cost structure tied to a Resource id, always fetched
// fresh relative to that id.
type PricingInfo struct {
	ResourceID  string  `json:"resource_id"`
	UnitPrice   float64 `json:"unit_price"`
	Currency    string  `json:"currency"`
	Granularity string  `json:"granularity"`
}

// TrainingConfig is the payload a caller submits to start a job. The Payload
// is connector-defined and opaque to the core.
type TrainingConfig struct {
	ResourceID string          `json:"resource_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

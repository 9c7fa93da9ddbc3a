package domain

import "time"

// SourceConfig is the per-source configuration loaded once at startup.
type SourceConfig struct {
	ID                string
	Enabled           bool
	RequestsPerMinute int
	Priority          int
	// Stablecoins lists asset symbols this source should pin to 1.0 USD.
	// Only explicitly configured assets are pinned, never guessed.
	Stablecoins []string
}

// SourceStatus is the health snapshot reported for one source.
type SourceStatus struct {
	ID            string    `json:"id"`
	Enabled       bool      `json:"enabled"`
	LastSuccessAt time.Time `json:"last_success_at"`
	CircuitState  string    `json:"circuit_state"`
}

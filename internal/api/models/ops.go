package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus represents the overall system status.
type SystemStatus struct {
	Status       HealthStatus      `json:"status"`
	Time         Timestamp         `json:"time"`
	Subsystems   []SubsystemStatus `json:"subsystems"`
	Providers    []ProviderStatus  `json:"providers"`
	RailwayIndex *IndexStatus      `json:"railwayIndex,omitempty"`
	Caches       []CacheStatus     `json:"caches,omitempty"`
}

// SubsystemStatus represents the status of a subsystem.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// ProviderStatus represents the status of an external provider.
type ProviderStatus struct {
	Provider            string       `json:"provider"`
	Status              HealthStatus `json:"status"`
	CircuitState        string       `json:"circuitState"`
	CircuitChangedAt    *Timestamp   `json:"circuitChangedAt,omitempty"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	LastSuccessAt       *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *Timestamp   `json:"lastFailureAt,omitempty"`
	Message             *string      `json:"message,omitempty"`
}

// IndexStatus describes the railway reverse-index.
type IndexStatus struct {
	Source       string     `json:"source"`
	Built        bool       `json:"built"`
	Fresh        bool       `json:"fresh"`
	BuiltAt      *Timestamp `json:"builtAt,omitempty"`
	Builds       int        `json:"builds"`
	Failures     int        `json:"failures"`
	LastError    string     `json:"lastError,omitempty"`
	StationNames int        `json:"stationNames"`
	Railways     int        `json:"railways"`
}

// CacheStatus describes one service cache.
type CacheStatus struct {
	Name         string     `json:"name"`
	Provider     string     `json:"provider"`
	Entries      int        `json:"entries"`
	FreshEntries int        `json:"freshEntries"`
	FetchedAt    *Timestamp `json:"fetchedAt,omitempty"`
}

// RebuildResult is returned by the admin index rebuild endpoint.
type RebuildResult struct {
	BuiltAt      Timestamp `json:"builtAt"`
	StationNames int       `json:"stationNames"`
	Railways     int       `json:"railways"`
}

// InvalidateResult is returned by the admin cache invalidation endpoint.
type InvalidateResult struct {
	Invalidated []string `json:"invalidated"`
}

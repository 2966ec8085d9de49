package transit

import (
	"errors"
	"strings"
	"time"
)

// Transit errors.
var (
	ErrProviderUnavailable = errors.New("transit provider unavailable")
	ErrRailwayNotFound     = errors.New("railway not found")
)

// NormalStatusText is reported for lines without a live issue.
const NormalStatusText = "operating normally"

// Status is the operational state of a railway line.
type Status string

const (
	StatusNormal  Status = "normal"
	StatusDelay   Status = "delay"
	StatusSuspend Status = "suspend"
	StatusDirect  Status = "direct"  // through-service to another operator suspended
	StatusRestore Status = "restore" // service resumed, delays may remain
)

// Severity orders statuses from normal (0) to suspend (4).
func (s Status) Severity() int {
	switch s {
	case StatusSuspend:
		return 4
	case StatusDirect:
		return 3
	case StatusDelay:
		return 2
	case StatusRestore:
		return 1
	default:
		return 0
	}
}

// IsNormal returns true when no issue is reported.
func (s Status) IsNormal() bool {
	return s == StatusNormal
}

// ParseStatus converts a wire value back to a Status.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusNormal, StatusDelay, StatusSuspend, StatusDirect, StatusRestore:
		return Status(s), true
	default:
		return StatusNormal, false
	}
}

// RailwayStatus is the current status of one line. It is replaced wholesale on
// every fetch.
type RailwayStatus struct {
	RailwayID   string
	RailwayName string
	Operator    string
	Status      Status
	StatusText  string
	Cause       string
	UpdatedAt   time.Time
}

// Report is a raw train information entry from a provider.
type Report struct {
	RailwayID   string
	RailwayName string
	Operator    string

	// State is the provider's short status label (may be empty when normal).
	State string

	// Text is the free-form description.
	Text string

	Cause     string
	UpdatedAt time.Time
}

// Classify derives a Status from a provider's status label and text.
func Classify(state, text string) Status {
	s := strings.ToLower(state + " " + text)

	switch {
	case containsAny(s, "見合わせ", "運休", "suspend"):
		return StatusSuspend
	case containsAny(s, "直通運転中止", "直通運転を中止"):
		return StatusDirect
	case containsAny(s, "再開", "resume"):
		return StatusRestore
	case containsAny(s, "遅れ", "遅延", "乱れ", "delay"):
		return StatusDelay
	default:
		return StatusNormal
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

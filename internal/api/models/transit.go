package models

import (
	"github.com/commutedeck/commutedeck/internal/transit"
)

// TrainInfo is the operational status of one railway line.
type TrainInfo struct {
	RailwayID   string     `json:"railwayId"`
	RailwayName string     `json:"railwayName"`
	Operator    string     `json:"operator"`
	Status      string     `json:"status"`
	StatusText  string     `json:"statusText"`
	Cause       string     `json:"cause,omitempty"`
	UpdatedAt   *Timestamp `json:"updatedAt,omitempty"`
}

// NewTrainInfo converts a domain status.
func NewTrainInfo(s transit.RailwayStatus) TrainInfo {
	return TrainInfo{
		RailwayID:   s.RailwayID,
		RailwayName: s.RailwayName,
		Operator:    s.Operator,
		Status:      string(s.Status),
		StatusText:  s.StatusText,
		Cause:       s.Cause,
		UpdatedAt:   TimestampPtr(s.UpdatedAt),
	}
}

// Domain converts back to a domain status. Unknown status values read as normal.
func (t TrainInfo) Domain() transit.RailwayStatus {
	status, _ := transit.ParseStatus(t.Status)
	s := transit.RailwayStatus{
		RailwayID:   t.RailwayID,
		RailwayName: t.RailwayName,
		Operator:    t.Operator,
		Status:      status,
		StatusText:  t.StatusText,
		Cause:       t.Cause,
	}
	if t.UpdatedAt != nil {
		s.UpdatedAt = t.UpdatedAt.Time()
	}
	return s
}

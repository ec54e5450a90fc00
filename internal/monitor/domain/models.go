package domain

import "math"

// AccountStatus is one dashboard row of the status snapshot.
type AccountStatus struct {
	ID             int64   `json:"id"`
	Account        string  `json:"account"` // masked access key id
	FlowTotal      float64 `json:"flow_total"`
	FlowUsed       float64 `json:"flow_used"`
	UsagePercent   float64 `json:"percentageOfUse"`
	Region         string  `json:"region"`
	RegionName     string  `json:"regionName"`
	OverThreshold  bool    `json:"rate95"`
	Threshold      float64 `json:"threshold"`
	InstanceStatus Status  `json:"instanceStatus"`
	LastUpdated    string  `json:"lastUpdated"`
}

// UsagePercent computes used/max as a percentage rounded to two
// decimals, zero when the quota is unset.
func UsagePercent(used, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return Round2(used / max * 100)
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

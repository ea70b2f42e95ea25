package meter

import "time"

// Data is one reading from the energy meter on the pump's feed.
type Data struct {
	Id           string    `json:"id"`
	Model        string    `json:"model"`
	Time         time.Time `json:"time"`
	Current_W    float64   `json:"w,omitempty"`
	Total_WH     float64   `json:"wh,omitempty"`
	L1_A         float64   `json:"l1_a,omitempty"`
	L2_A         float64   `json:"l2_a,omitempty"`
	L3_A         float64   `json:"l3_a,omitempty"`
	FlowTemp_C   float64   `json:"flow_c,omitempty"`
	ReturnTemp_C float64   `json:"return_c,omitempty"`
}

// DrawingPower reports whether the pump is pulling more than threshold
// watts, i.e. the compressor or circulation pump is actually running.
func (d *Data) DrawingPower(threshold float64) bool {
	if d == nil {
		return false
	}
	return d.Current_W > threshold
}

package fairland

import "fmt"

// faultsMap translates the code in input register 4 to the text the
// pump panel shows for it.
var faultsMap = map[int]string{
	1:  "E1 high pressure protection",
	2:  "E2 low pressure protection",
	3:  "E3 no water flow protection",
	4:  "E4 three phase sequence protection",
	5:  "E5 power supply out of range",
	6:  "E6 inlet outlet temperature difference too large",
	7:  "E7 water outlet temperature out of range",
	8:  "E8 high exhaust temperature protection",
	11: "Eb ambient temperature out of range",
	12: "Ed anti freeze protection active",
	21: "P1 water inlet temperature sensor fault",
	22: "P2 water outlet temperature sensor fault",
	23: "P3 exhaust temperature sensor fault",
	24: "P4 coil pipe temperature sensor fault",
	25: "P5 gas return temperature sensor fault",
	27: "P7 ambient temperature sensor fault",
	31: "F1 compressor drive module fault",
	32: "F2 PFC module fault",
	33: "F3 compressor start failure",
	34: "F4 compressor running fault",
	35: "F5 inverter board overcurrent",
	36: "F6 inverter board overheat",
}

// FaultText returns the panel text for a fault code.
func FaultText(code int) string {
	if text, ok := faultsMap[code]; ok {
		return text
	}
	return fmt.Sprintf("unknown fault code %d", code)
}

package hardware

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CPUTempPath is the thermal zone of the SoC on a Raspberry Pi.
const CPUTempPath = "/sys/class/thermal/thermal_zone0/temp"

// ReadCPUTemp reads a thermal zone file (millidegrees) and returns °C.
func ReadCPUTemp(path string) (float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("cputemp: read %s: %w", path, err)
	}
	millideg, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cputemp: parse: %w", err)
	}
	return float32(millideg) / 1000.0, nil
}

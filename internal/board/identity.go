package board

import (
	"os"
	"strings"
)

// Device-tree model files, in preference order.
var modelPaths = []string{
	"/proc/device-tree/model",
	"/sys/firmware/devicetree/base/model",
}

// modelIDs maps a substring of the device-tree model to a device identifier.
var modelIDs = []struct {
	substr string
	id     Variant
}{
	{"Raspberry Pi 3", Rpi3},
	{"Intel Edison", Edison},
	{"i.MX6 UltraLite", Nxp},
	{"i.MX6UL", Nxp},
	{"imx6ul", Nxp},
}

// DetectDeviceID returns the device identifier to resolve. A non-empty
// override wins. Otherwise the device-tree model is matched against the known
// boards; failing that the kernel node name is returned so an unknown board
// is reported by name.
func DetectDeviceID(override string) string {
	if s := strings.TrimSpace(override); s != "" {
		return s
	}
	for _, p := range modelPaths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if id := deviceIDFromModel(string(b)); id != "" {
			return id
		}
	}
	return nodeName()
}

func deviceIDFromModel(model string) string {
	model = strings.Trim(strings.TrimSpace(model), "\x00")
	for _, m := range modelIDs {
		if strings.Contains(model, m.substr) {
			return string(m.id)
		}
	}
	return ""
}

package telemetry

import (
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/geovan/vehicle-node/log2"
)

const thermalZonePath = "/sys/class/thermal/thermal_zone0/temp"

type HardwareHealth struct {
	CPUTemp     float64 `json:"cpu_temp"`
	MemoryUsage float64 `json:"memory_usage"`
	DiskUsage   float64 `json:"disk_usage"`
}

// ReadHostHealth samples CPU temperature, memory and disk usage.
// Every probe defaults to 0 on failure, a telemetry record is always
// produced.
func ReadHostHealth(log *log2.Log) HardwareHealth {
	h := HardwareHealth{}

	h.CPUTemp = cpuTemperature(log)

	if vm, err := mem.VirtualMemory(); err != nil {
		log.Debugf("health: mem err=%v", err)
	} else {
		h.MemoryUsage = vm.UsedPercent
	}

	if du, err := disk.Usage("/"); err != nil {
		log.Debugf("health: disk err=%v", err)
	} else {
		h.DiskUsage = du.UsedPercent
	}

	return h
}

func cpuTemperature(log *log2.Log) float64 {
	if temps, err := host.SensorsTemperatures(); err == nil {
		for _, t := range temps {
			key := strings.ToLower(t.SensorKey)
			if strings.Contains(key, "cpu") || strings.Contains(key, "coretemp") || strings.Contains(key, "soc") {
				if t.Temperature > 0 {
					return t.Temperature
				}
			}
		}
	}
	// gopsutil sensor naming is spotty on SBCs, thermal_zone0 is the
	// reliable path on Raspberry Pi
	b, err := ioutil.ReadFile(thermalZonePath)
	if err != nil {
		log.Debugf("health: cpu temp err=%v", err)
		return 0
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		log.Debugf("health: cpu temp parse err=%v", err)
		return 0
	}
	return milli / 1000.0
}

package machineid

import (
	"github.com/denisbrodbeck/machineid"

	"github.com/ajkula/plistener/domain/port/outbound"
)

// appID scopes the hashed id so it can't be correlated with other apps
const appID = "plistener"

type hardwareMachineID struct{}

func NewHardwareMachineID() outbound.MachineIDService {
	return &hardwareMachineID{}
}

// GetMachineID returns an HMAC of the OS machine id keyed by appID, never the raw id
func (h *hardwareMachineID) GetMachineID() (string, error) {
	return machineid.ProtectedID(appID)
}

// InstanceID shortens the machine id for display; failures yield "unknown"
func InstanceID(svc outbound.MachineIDService, logger outbound.Logger) string {
	id, err := svc.GetMachineID()
	if err != nil || id == "" {
		logger.Warn("Machine id unavailable", "error", err)
		return "unknown"
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

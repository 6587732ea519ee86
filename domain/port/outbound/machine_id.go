package outbound

// MachineIDService identifies the host a tracker runs on
type MachineIDService interface {
	GetMachineID() (string, error)
}

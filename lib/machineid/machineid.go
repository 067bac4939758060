// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package machineid

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Factor identifies which source produced an [ID]'s value.
type Factor string

const (
	// FactorLinuxMachineID means the value came from a D-Bus machine-id
	// file (/etc/machine-id or /var/lib/dbus/machine-id).
	FactorLinuxMachineID Factor = "linux-machine-id"

	// FactorDarwinPlatformUUID means the value came from ioreg's
	// IOPlatformUUID for the root platform expert device.
	FactorDarwinPlatformUUID Factor = "darwin-platform-uuid"

	// FactorHostnameMAC means no platform-specific identifier was
	// available and the value was derived from the hostname and the
	// first non-loopback interface's hardware address.
	FactorHostnameMAC Factor = "hostname-mac"
)

// ID is a resolved machine identifier together with the factor that
// produced it.
type ID struct {
	Value  string
	Factor Factor
}

// String returns "factor:value", the form stored in the vault header so
// a later load can tell factor drift apart from value drift.
func (id ID) String() string {
	return fmt.Sprintf("%s:%s", id.Factor, id.Value)
}

// linuxMachineIDPaths are tried in order; the second is a historical
// alias some distributions populate when the first is absent.
var linuxMachineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

// Identify resolves a stable identifier for the current machine. It
// never fails: if no platform-specific source is available, it falls
// back to a hostname+MAC composite, which is always constructible.
func Identify() (ID, error) {
	switch runtime.GOOS {
	case "linux":
		if id, ok := identifyLinux(); ok {
			return id, nil
		}
	case "darwin":
		if id, ok := identifyDarwin(); ok {
			return id, nil
		}
	}
	return identifyFallback()
}

func identifyLinux() (ID, bool) {
	for _, path := range linuxMachineIDPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		value := strings.TrimSpace(string(data))
		if value == "" {
			continue
		}
		return ID{Value: value, Factor: FactorLinuxMachineID}, true
	}
	return ID{}, false
}

func identifyDarwin() (ID, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice")
	output, err := cmd.Output()
	if err != nil {
		return ID{}, false
	}

	for _, line := range strings.Split(string(output), "\n") {
		if !strings.Contains(line, "IOPlatformUUID") {
			continue
		}
		fields := strings.Split(line, `"`)
		if len(fields) < 2 {
			continue
		}
		value := fields[len(fields)-2]
		if value == "" {
			continue
		}
		return ID{Value: value, Factor: FactorDarwinPlatformUUID}, true
	}
	return ID{}, false
}

func identifyFallback() (ID, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	mac := firstInterfaceMAC()
	return ID{
		Value:  fmt.Sprintf("%s-%s", hostname, mac),
		Factor: FactorHostnameMAC,
	}, nil
}

// firstInterfaceMAC returns the hardware address of the first interface
// that has one, skipping loopback and interfaces with no address. If
// nothing qualifies, returns "00:00:00:00:00:00".
func firstInterfaceMAC() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "00:00:00:00:00:00"
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String()
	}
	return "00:00:00:00:00:00"
}

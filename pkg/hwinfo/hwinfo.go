// Package hwinfo parses the hardware report produced by the hw_info and
// hw_info_lazy commands.
//
// The report is split into sections introduced by "--<name>--" lines:
//
//	--disk-info--
//	/dev/sdb1 size:1048576 fs:ext4 mount:/data
//	--cluster-info--
//	heartbeat:stopped
//	corosync:running
//	pacemaker:1.1.12
//	--drbd-info--
//	loaded:yes
//
// Unknown sections are skipped. The lazy report usually omits disk-info.
package hwinfo

import (
	"bufio"
	"sort"
	"strconv"
	"strings"
)

// BlockDevice is one disk or partition reported by a host.
type BlockDevice struct {
	Name       string
	Size       uint64
	FileSystem string
	MountPoint string
}

// Used reports whether the device is mounted.
func (b BlockDevice) Used() bool { return b.MountPoint != "" }

// Stack is the state of the cluster communication layer on a host.
type Stack struct {
	Heartbeat bool
	Corosync  bool
	Openais   bool
	// Pacemaker holds the pacemaker version, empty when not installed.
	Pacemaker string
	Starting  bool
	Stopping  bool
}

// Running reports whether any recognized cluster stack is running.
func (s Stack) Running() bool { return s.Heartbeat || s.Corosync || s.Openais }

// Info is one parsed report.
type Info struct {
	// BlockDevices is nil when the report had no disk-info section.
	BlockDevices []BlockDevice
	Stack        Stack
	HasStack     bool
	DrbdLoaded   bool
	HasDrbd      bool
	Warnings     []string
}

// Parse reads a report. Malformed lines are collected as warnings.
func Parse(out string) Info {
	var info Info
	section := ""
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "--") && strings.HasSuffix(line, "--") && len(line) > 4 {
			section = strings.Trim(line, "-")
			switch section {
			case "disk-info":
				if info.BlockDevices == nil {
					info.BlockDevices = []BlockDevice{}
				}
			case "cluster-info":
				info.HasStack = true
			case "drbd-info":
				info.HasDrbd = true
			}
			continue
		}
		switch section {
		case "disk-info":
			bd, ok := parseDisk(line)
			if !ok {
				info.Warnings = append(info.Warnings, line)
				continue
			}
			info.BlockDevices = append(info.BlockDevices, bd)
		case "cluster-info":
			if !parseStack(&info.Stack, line) {
				info.Warnings = append(info.Warnings, line)
			}
		case "drbd-info":
			k, v, ok := strings.Cut(line, ":")
			if ok && k == "loaded" {
				info.DrbdLoaded = v == "yes" || v == "true"
			}
		}
	}
	sort.Slice(info.BlockDevices, func(i, j int) bool {
		return info.BlockDevices[i].Name < info.BlockDevices[j].Name
	})
	return info
}

func parseDisk(line string) (BlockDevice, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return BlockDevice{}, false
	}
	bd := BlockDevice{Name: fields[0]}
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, ":")
		if !ok {
			return BlockDevice{}, false
		}
		switch k {
		case "size":
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return BlockDevice{}, false
			}
			bd.Size = n
		case "fs":
			bd.FileSystem = v
		case "mount":
			bd.MountPoint = v
		}
	}
	return bd, true
}

func parseStack(s *Stack, line string) bool {
	k, v, ok := strings.Cut(line, ":")
	if !ok {
		return false
	}
	running := v == "running"
	switch k {
	case "heartbeat":
		s.Heartbeat = running
	case "corosync":
		s.Corosync = running
	case "openais":
		s.Openais = running
	case "pacemaker":
		s.Pacemaker = v
	case "comm-layer":
		s.Starting = v == "starting"
		s.Stopping = v == "stopping"
	default:
		return false
	}
	return true
}

// CommonBlockDevices returns the device names present in every list, sorted.
func CommonBlockDevices(perHost [][]BlockDevice) []string {
	if len(perHost) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, devs := range perHost {
		seen := make(map[string]bool, len(devs))
		for _, d := range devs {
			if !seen[d.Name] {
				seen[d.Name] = true
				counts[d.Name]++
			}
		}
	}
	var common []string
	for name, n := range counts {
		if n == len(perHost) {
			common = append(common, name)
		}
	}
	sort.Strings(common)
	return common
}

package drbd

import (
	"encoding/xml"
	"fmt"
	"strings"
)

type xmlConfig struct {
	XMLName   xml.Name      `xml:"config"`
	Resources []xmlResource `xml:"resource"`
}

type xmlResource struct {
	Name     string    `xml:"name,attr"`
	Protocol string    `xml:"protocol,attr"`
	Hosts    []xmlHost `xml:"host"`
}

type xmlHost struct {
	Name    string      `xml:"name,attr"`
	Volumes []xmlVolume `xml:"volume"`
	// DRBD 8.3 puts device and disk directly under host.
	Device  xmlDevice  `xml:"device"`
	Disk    string     `xml:"disk"`
	Address xmlAddress `xml:"address"`
}

type xmlVolume struct {
	Number string    `xml:"vnr,attr"`
	Device xmlDevice `xml:"device"`
	Disk   string    `xml:"disk"`
}

type xmlDevice struct {
	Minor string `xml:"minor,attr"`
	Path  string `xml:",chardata"`
}

type xmlAddress struct {
	Family string `xml:"family,attr"`
	Port   string `xml:"port,attr"`
	IP     string `xml:",chardata"`
}

func (d xmlDevice) path() string {
	if p := strings.TrimSpace(d.Path); p != "" {
		return p
	}
	if d.Minor != "" {
		return "/dev/drbd" + d.Minor
	}
	return ""
}

// Config is one parsed dump-xml document.
type Config struct {
	Resources []ResourceConfig
}

// ResourceConfig is the configuration of one resource.
type ResourceConfig struct {
	Name     string
	Protocol string
	Volumes  []VolumeConfig
	// Addresses maps host name to "ip:port".
	Addresses map[string]string
}

// VolumeConfig is one volume of a resource.
type VolumeConfig struct {
	Number string
	Device string
	// Disks maps host name to backing disk.
	Disks map[string]string
}

// ParseConfig parses the output of the drbd_config command.
func ParseConfig(raw string) (*Config, error) {
	var doc xmlConfig
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("parsing drbd config: %w", err)
	}

	cfg := &Config{}
	for _, xr := range doc.Resources {
		if xr.Name == "" {
			return nil, fmt.Errorf("parsing drbd config: resource without name")
		}
		rc := ResourceConfig{Name: xr.Name, Protocol: xr.Protocol, Addresses: map[string]string{}}
		volumes := map[string]*VolumeConfig{}
		var order []string
		volume := func(nr, device string) *VolumeConfig {
			v, ok := volumes[nr]
			if !ok {
				v = &VolumeConfig{Number: nr, Disks: map[string]string{}}
				volumes[nr] = v
				order = append(order, nr)
			}
			if v.Device == "" {
				v.Device = device
			}
			return v
		}
		for _, xh := range xr.Hosts {
			if ip := strings.TrimSpace(xh.Address.IP); ip != "" {
				rc.Addresses[xh.Name] = ip + ":" + xh.Address.Port
			}
			if len(xh.Volumes) == 0 {
				if disk := strings.TrimSpace(xh.Disk); disk != "" {
					volume("0", xh.Device.path()).Disks[xh.Name] = disk
				}
				continue
			}
			for _, xv := range xh.Volumes {
				nr := xv.Number
				if nr == "" {
					nr = "0"
				}
				v := volume(nr, xv.Device.path())
				if disk := strings.TrimSpace(xv.Disk); disk != "" {
					v.Disks[xh.Name] = disk
				}
			}
		}
		for _, nr := range order {
			rc.Volumes = append(rc.Volumes, *volumes[nr])
		}
		cfg.Resources = append(cfg.Resources, rc)
	}
	return cfg, nil
}

package config

import (
	"time"

	"github.com/glkvm/kvmapi/astrowarp"
	"github.com/glkvm/kvmapi/hidname"
	"github.com/glkvm/kvmapi/internal/cfgutil"
	"github.com/glkvm/kvmapi/internal/sysexec"
)

// Root is the root configuration for the kvmapid daemon.
type Root struct {
	ListenAddr cfgutil.EnvString `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
	// MetricsAddr, if set, serves /metrics on its own listener instead of
	// next to the API.
	MetricsAddr cfgutil.EnvString `toml:"metrics_addr" json:"metrics_addr" yaml:"metrics_addr"`
	// APIPrefix is the path every API route is mounted under.
	APIPrefix string `toml:"api_prefix" json:"api_prefix" yaml:"api_prefix"`

	Astrowarp astrowarp.Config `toml:"astrowarp" json:"astrowarp" yaml:"astrowarp"`
	HIDName   HIDName          `toml:"hidname" json:"hidname" yaml:"hidname"`
}

// HIDName is the configuration for the USB identity API.
type HIDName struct {
	OverridePath string           `toml:"override_path" json:"override_path" yaml:"override_path"`
	Defaults     hidname.Identity `toml:"defaults" json:"defaults" yaml:"defaults"`
	Reboot       Reboot           `toml:"reboot" json:"reboot" yaml:"reboot"`
}

// Reboot describes the sequence run after the USB identity changes.
type Reboot struct {
	SyncCommand   sysexec.Command  `toml:"sync_command" json:"sync_command" yaml:"sync_command"`
	RebootCommand sysexec.Command  `toml:"reboot_command" json:"reboot_command" yaml:"reboot_command"`
	Delay         cfgutil.Duration `toml:"delay" json:"delay" yaml:"delay"`
}

// Default returns the configuration of a stock device.
func Default() Root {
	return Root{
		ListenAddr: "127.0.0.1:8081",
		APIPrefix:  "/api",
		Astrowarp:  astrowarp.DefaultConfig(),
		HIDName: HIDName{
			OverridePath: hidname.DefaultOverridePath,
			Defaults:     hidname.DefaultIdentity,
			Reboot: Reboot{
				SyncCommand:   "sync",
				RebootCommand: "reboot",
				Delay:         cfgutil.Duration(time.Second),
			},
		},
	}
}

// Load returns the default configuration overlaid with the file at path. An
// empty path returns the defaults.
func Load(path string) (Root, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if err := cfgutil.ParseFileInto(path, &cfg); err != nil {
		return Root{}, err
	}
	return cfg, nil
}

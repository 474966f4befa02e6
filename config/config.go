// Package config decodes the process's Sheepdog-endpoint configuration,
// the same way the teacher's backend/cache engines decode their own
// per-engine config blocks: defaults first, then a mapstructure.Decode
// overlay from whatever the caller read out of viper.
package config

import (
	"time"

	"github.com/mitchellh/mapstructure"
)

// SheepdogConfig is the cluster endpoint this core's sdclient connections
// dial.
type SheepdogConfig struct {
	Network string `mapstructure:"network"`
	Address string `mapstructure:"address"`

	// DialTimeout bounds connecting the throwaway VID-resolution socket
	// and the session socket a Volume holds for its lifetime.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// RequestTimeout is carried for callers that want to bound a single
	// RPC's round trip; transport itself enforces no per-request
	// deadline once a connection is established (see transport package
	// doc), so this is a policy knob for the engine layer, not sdclient.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DefaultSheepdogConfig matches the wire protocol's stated default
// endpoint.
func DefaultSheepdogConfig() SheepdogConfig {
	return SheepdogConfig{
		Network:        "tcp",
		Address:        "localhost:7000",
		DialTimeout:    5 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// DecodeSheepdogConfig overlays data (typically viper.GetStringMap
// ("sheepdog"), or nil) onto the defaults. dial_timeout accepts either a
// duration string ("5s") or a plain number of nanoseconds.
func DecodeSheepdogConfig(data interface{}) (SheepdogConfig, error) {
	cfg := DefaultSheepdogConfig()
	if data == nil {
		return cfg, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &cfg,
	})
	if err != nil {
		return SheepdogConfig{}, err
	}
	if err := dec.Decode(data); err != nil {
		return SheepdogConfig{}, err
	}
	return cfg, nil
}

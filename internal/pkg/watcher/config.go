package watcher

import (
	"github.com/looplj/lifeline/internal/pkg/xredis"
)

const (
	ModeMemory = "memory"
	ModeRedis  = "redis"
)

type Config struct {
	Mode string `conf:"mode" yaml:"mode" json:"mode"`

	// ChannelPrefix is prepended to the topic to build the redis channel name.
	ChannelPrefix string `conf:"channel_prefix" yaml:"channel_prefix" json:"channel_prefix"`

	// Buffer is the per-subscriber channel capacity.
	Buffer int `conf:"buffer" yaml:"buffer" json:"buffer"`

	Redis xredis.Config `conf:"redis" yaml:"redis" json:"redis"`
}

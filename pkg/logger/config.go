package logger

import "log/slog"

type Backend string

const (
	BackendStd Backend = "std" // text handler on stdout
	BackendZap Backend = "zap" // JSON via zap with burst sampling
)

type Config struct {
	Service    string
	Version    string
	InstanceID string

	Level   slog.Level
	Env     Env
	Backend Backend
	Debug   bool

	// Zap sampling, per second: log SampleInitial records, then
	// every SampleThereafter-th.
	SampleInitial    int
	SampleThereafter int

	AddSource bool
}

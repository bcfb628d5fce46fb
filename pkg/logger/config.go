package logger

import "log/slog"

type Backend string

const (
	BackendStd Backend = "std" // text handler, human-readable
	BackendZap Backend = "zap" // JSON via slog-zap, sampled
)

type Config struct {
	// Logger metadata, stamped on every record.
	Service    string
	Version    string
	InstanceID string

	// Output control.
	Level   slog.Level
	Env     Env
	Backend Backend // default: zap for stage/prod, std for dev
	Debug   bool

	// Zap burst sampling.
	SampleInitial    int
	SampleThereafter int

	// AddSource in dev.
	AddSource bool
}

package backend

import (
	"vff/internal/config"
	"vff/internal/safe"
)

// OptionsFromConfig maps the repository section of a config file onto Options.
func OptionsFromConfig(rc config.Repository) Options {
	return Options{
		Root:        rc.Root,
		Log:         rc.Log,
		Encoding:    rc.Encoding,
		LockTimeout: rc.LockTimeout.Duration(),
		CacheSize:   rc.CacheSize,
		Compression: safe.CompressionOptions{
			Enabled: rc.Compression.Enabled,
			MinSize: rc.Compression.MinSize,
			Level:   rc.Compression.Level,
		},
	}
}

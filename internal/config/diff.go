package config

// ConfigDiff describes what changed between two configs, split by how the
// change can be applied. Decode and sync tunables are hot-reloadable; the
// server and ingress blocks take effect only after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DecodeChanged covers the classifier and framing tunables.
	DecodeChanged bool

	// SyncChanged covers the tracker, estimator and authority tunables,
	// including the deliberate shift.
	SyncChanged bool

	// RestartNeeded is set when the server or ingress blocks differ;
	// those are only read at startup.
	RestartNeeded bool
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.DecodeChanged && !d.SyncChanged && !d.RestartNeeded
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Decode != new.Decode {
		d.DecodeChanged = true
	}
	if old.Sync != new.Sync {
		d.SyncChanged = true
	}

	if old.Ingress != new.Ingress {
		d.RestartNeeded = true
	}
	if old.Server.ListenAddr != new.Server.ListenAddr || !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartNeeded = true
	}
	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

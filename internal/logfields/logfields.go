package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyUnit       = "unit"
	KeyStage      = "stage"
	KeyPath       = "path"
	KeyImage      = "image"
	KeyRegistry   = "registry"
	KeyVersion    = "version"
	KeyReason     = "reason"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Unit(name string) slog.Attr      { return slog.String(KeyUnit, name) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Image(ref string) slog.Attr      { return slog.String(KeyImage, ref) }
func Registry(host string) slog.Attr  { return slog.String(KeyRegistry, host) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func Reason(r string) slog.Attr       { return slog.String(KeyReason, r) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

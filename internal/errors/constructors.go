package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *ShipwrightError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ValidationFailed(field, reason string) *ShipwrightError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Change-detection errors

// InputRead marks a declared input that could not be hashed. Fatal to the unit:
// an unreadable input is never treated as absent.
func InputRead(path string, cause error) *ShipwrightError {
	return Wrap(cause, CategoryInputRead, SeverityFatal, "cannot read build input").
		WithContext("path", path)
}

// Diff marks a history lookup failure. Recoverable: the oracle absorbs it and
// biases toward rebuilding.
func Diff(path string, cause error) *ShipwrightError {
	return WrapRecoverable(cause, CategoryDiff, "history diff failed").
		WithContext("path", path)
}

// Build phase errors

func LintBlocked(unit string, count int) *ShipwrightError {
	return New(CategoryLint, SeverityError, "lint reported blocking findings").
		WithContext("unit", unit).
		WithContext("errors", count)
}

func BundleFailed(unit string, cause error) *ShipwrightError {
	return Wrap(cause, CategoryBundle, SeverityFatal, "bundler failed").
		WithContext("unit", unit)
}

// Deploy phase errors

// InvalidAuth is raised before any network call when an image's registry host
// has no matching credential entry.
func InvalidAuth(registry string) *ShipwrightError {
	return New(CategoryAuth, SeverityFatal, "no credentials for registry").
		WithContext("registry", registry)
}

func ImageBuildFailed(image string, cause error) *ShipwrightError {
	return Wrap(cause, CategoryImageBuild, SeverityFatal, "image build failed").
		WithContext("image", image)
}

func ImagePushFailed(image string, cause error) *ShipwrightError {
	return Wrap(cause, CategoryImagePush, SeverityFatal, "image push failed").
		WithContext("image", image)
}

func ApplyFailed(stderr string) *ShipwrightError {
	return New(CategoryApply, SeverityFatal, "manifest apply reported errors").
		WithContext("stderr", stderr)
}

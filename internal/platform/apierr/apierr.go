package apierr

import "fmt"

// Stable error codes surfaced verbatim to API callers.
const (
	CodeMigrationRequired       = "MIGRATION_REQUIRED"
	CodeMigrationBlocked        = "MIGRATION_BLOCKED"
	CodeApplyLockTimeout        = "APPLY_LOCK_TIMEOUT"
	CodeSchemaLockTimeout       = "SCHEMA_LOCK_TIMEOUT"
	CodePoolExhausted           = "POOL_EXHAUSTED"
	CodeStructureVersionMissing = "STRUCTURE_VERSION_MISSING"
	CodeTemplateVersionNotFound = "TEMPLATE_VERSION_NOT_FOUND"
	CodeBranchNotFound          = "BRANCH_NOT_FOUND"
	CodeTemplatePointerConflict = "TEMPLATE_POINTER_CONFLICT"
	CodeCleanupModeReadOnly     = "CLEANUP_MODE_READ_ONLY"
	CodeManifestInvalid         = "MANIFEST_INVALID"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Newf(status int, code string, format string, args ...interface{}) *Error {
	return &Error{Status: status, Code: code, Err: fmt.Errorf(format, args...)}
}

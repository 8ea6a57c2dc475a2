package blocklog

import "errors"

// Sentinel errors matching spec.md 6's named block-log exit conditions.
// Callers distinguish them with errors.Is.
var (
	ErrNotFound           = errors.New("block_log_not_found")
	ErrUnsupportedVersion = errors.New("block_log_unsupported_version")
	ErrAppendFail         = errors.New("block_log_append_fail")
	ErrBackupDirExists    = errors.New("block_log_backup_dir_exist")
	ErrLogException       = errors.New("block_log_exception")
)

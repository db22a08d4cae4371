package chipinfo

// Error is the package's wrapper type, following the pattern used by
// serial.Error: a short message plus an optional underlying cause.
type Error struct {
	msg string
	err error
}

func (e Error) Error() string {
	if e.msg != "" {
		if e.err != nil {
			return e.msg + ": " + e.err.Error()
		}
		return e.msg
	}
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e Error) Unwrap() error {
	return e.err
}

func wrapErr(msg string, err error) error {
	if err == nil {
		return Error{msg: msg}
	}
	return Error{msg: msg, err: err}
}

// FormatError indicates a malformed chip-info (.cid) file.
type FormatError struct{ base Error }

func (e FormatError) Error() string { return e.base.Error() }

func (e FormatError) Unwrap() error { return e.base.Unwrap() }

func newFormatError(msg string) error {
	return FormatError{Error{msg: msg}}
}

// FuseError indicates an unknown fuse name/setting, or that a raw fuse
// pattern matches no declared setting.
type FuseError struct{ base Error }

func (e FuseError) Error() string { return e.base.Error() }

func (e FuseError) Unwrap() error { return e.base.Unwrap() }

func newFuseError(msg string) error {
	return FuseError{Error{msg: msg}}
}

package runtime

import (
	"errors"
	"fmt"
)

// ErrorCode is the result of an asynchronous loader operation.
type ErrorCode int

const (
	NotFinished        ErrorCode = -1
	Success            ErrorCode = 0
	NotInitialized     ErrorCode = 1
	NetworkError       ErrorCode = 2
	ManifestParseError ErrorCode = 3
	Cancelled          ErrorCode = 4
)

func (c ErrorCode) String() string {
	switch c {
	case NotFinished:
		return "NotFinished"
	case Success:
		return "Success"
	case NotInitialized:
		return "NotInitialized"
	case NetworkError:
		return "NetworkError"
	case ManifestParseError:
		return "ManifestParseError"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

var (
	ErrNotInitialized  = errors.New("loader is not initialized")
	ErrShutdown        = errors.New("loader is shut down")
	ErrWrongExecutor   = errors.New("operation awaited from the loader executor")
	ErrAlreadyDone     = errors.New("operation is already done")
	ErrUntrackedObject = errors.New("object is not tracked by the loader")
	ErrBundleNotLoaded = errors.New("bundle is not loaded")
	ErrAssetNotFound   = errors.New("asset not found")
	ErrHashMismatch    = errors.New("bundle hash mismatch")
	ErrInvalidEntry    = errors.New("invalid cache entry name")
	ErrBuildTarget     = errors.New("build target mismatch")
)

// OperationError carries the code an operation finished with.
type OperationError struct {
	Code ErrorCode
	Err  error
}

func (e *OperationError) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

package pipeline

import (
	"database/sql"
	"database/sql/driver"
	"net"
	"strings"

	"github.com/pkg/errors"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/SomaOhm/Goal-Tracking-App/internal/warehouse"
)

var (
	// ErrConnection marks failures to reach the operational store or the warehouse. Runs that
	// fail with it are retried with backoff.
	ErrConnection = errors.New("connection unavailable")
	// ErrRunInProgress is returned when Run is called while another run of the same
	// orchestrator is still going.
	ErrRunInProgress = errors.New("sync run already in progress")
)

type connectionError struct {
	what string
	err  error
}

func (e *connectionError) Error() string        { return e.what + ": " + e.err.Error() }
func (e *connectionError) Unwrap() error        { return e.err }
func (e *connectionError) Is(target error) bool { return target == ErrConnection }

func connectionFailure(what string, err error) error {
	return &connectionError{what: what, err: err}
}

var connectionErrorFragments = []string{
	"connection refused",
	"connection reset",
	"bad connection",
	"broken pipe",
	"database is closed",
	"no such host",
	"i/o timeout",
}

// IsConnectionError reports whether err is a transport-level failure rather than a problem with
// the data or the statement.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnection) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, warehouse.ErrUnavailable) ||
		errors.Is(err, gobreaker.ErrOpenState) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range connectionErrorFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

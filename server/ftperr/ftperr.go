// Package ftperr defines the session's error vocabulary as a small set of
// sentinel errors rather than an exhaustive exception hierarchy, matching
// the teacher's existing idiom of returning plain error values and testing
// with errors.Is/errors.As. Command handlers translate any internal failure
// into one of these before composing the FTP reply that accompanies it.
package ftperr

import "errors"

// The error taxonomy a command handler or driver call can terminate in.
// These are semantic kinds, not wrapped syscall errors — a handler maps
// whatever concrete error it receives (os.IsNotExist, a closed connection,
// and so on) onto the nearest one of these before deciding a reply code.
var (
	ErrInvalidParameter   = errors.New("ftperr: invalid parameter")
	ErrOutOfMemory        = errors.New("ftperr: out of memory")
	ErrSocketCreate       = errors.New("ftperr: socket create failed")
	ErrSocketBind         = errors.New("ftperr: socket bind failed")
	ErrSocketListen       = errors.New("ftperr: socket listen failed")
	ErrSocketAccept       = errors.New("ftperr: socket accept failed")
	ErrSocketSend         = errors.New("ftperr: socket send failed")
	ErrSocketRecv         = errors.New("ftperr: socket recv failed")
	ErrThreadCreate       = errors.New("ftperr: worker start failed")
	ErrFileOpen           = errors.New("ftperr: file open failed")
	ErrFileRead           = errors.New("ftperr: file read failed")
	ErrFileWrite          = errors.New("ftperr: file write failed")
	ErrFileStat           = errors.New("ftperr: file stat failed")
	ErrDirOpen            = errors.New("ftperr: directory open failed")
	ErrPathInvalid        = errors.New("ftperr: path invalid")
	ErrPathTooLong        = errors.New("ftperr: path too long")
	ErrNotFound           = errors.New("ftperr: not found")
	ErrPermissionDenied   = errors.New("ftperr: permission denied")
	ErrTimeout            = errors.New("ftperr: timeout")
	ErrMaxSessionsReached = errors.New("ftperr: max sessions reached")
	ErrAuthFailed         = errors.New("ftperr: authentication failed")
	ErrProtocolViolation  = errors.New("ftperr: protocol violation")
	ErrUnknown            = errors.New("ftperr: unknown error")
)

// Kind identifies one of the taxonomy's entries, for callers that want to
// switch on the failure class (e.g. to pick a metrics label) without a long
// errors.Is chain.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidParameter
	KindOutOfMemory
	KindSocketCreate
	KindSocketBind
	KindSocketListen
	KindSocketAccept
	KindSocketSend
	KindSocketRecv
	KindThreadCreate
	KindFileOpen
	KindFileRead
	KindFileWrite
	KindFileStat
	KindDirOpen
	KindPathInvalid
	KindPathTooLong
	KindNotFound
	KindPermissionDenied
	KindTimeout
	KindMaxSessionsReached
	KindAuthFailed
	KindProtocolViolation
)

var sentinelByKind = map[Kind]error{
	KindInvalidParameter:   ErrInvalidParameter,
	KindOutOfMemory:        ErrOutOfMemory,
	KindSocketCreate:       ErrSocketCreate,
	KindSocketBind:         ErrSocketBind,
	KindSocketListen:       ErrSocketListen,
	KindSocketAccept:       ErrSocketAccept,
	KindSocketSend:         ErrSocketSend,
	KindSocketRecv:         ErrSocketRecv,
	KindThreadCreate:       ErrThreadCreate,
	KindFileOpen:           ErrFileOpen,
	KindFileRead:           ErrFileRead,
	KindFileWrite:          ErrFileWrite,
	KindFileStat:           ErrFileStat,
	KindDirOpen:            ErrDirOpen,
	KindPathInvalid:        ErrPathInvalid,
	KindPathTooLong:        ErrPathTooLong,
	KindNotFound:           ErrNotFound,
	KindPermissionDenied:   ErrPermissionDenied,
	KindTimeout:            ErrTimeout,
	KindMaxSessionsReached: ErrMaxSessionsReached,
	KindAuthFailed:         ErrAuthFailed,
	KindProtocolViolation:  ErrProtocolViolation,
	KindUnknown:            ErrUnknown,
}

// Of returns the sentinel error for kind.
func Of(kind Kind) error {
	if e, ok := sentinelByKind[kind]; ok {
		return e
	}
	return ErrUnknown
}

// ReplyCode maps an error produced anywhere in a command handler to the FTP
// reply code the spec assigns its taxonomy kind. Errors not recognized by
// errors.Is against this package's sentinels fall back to 451 (local error
// in processing), the spec's catch-all for ErrUnknown.
func ReplyCode(err error) int {
	switch {
	case err == nil:
		return 200
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPathInvalid), errors.Is(err, ErrPathTooLong):
		return 550
	case errors.Is(err, ErrPermissionDenied):
		return 550
	case errors.Is(err, ErrAuthFailed):
		return 530
	case errors.Is(err, ErrMaxSessionsReached):
		return 421
	case errors.Is(err, ErrTimeout):
		return 421
	case errors.Is(err, ErrInvalidParameter), errors.Is(err, ErrProtocolViolation):
		return 501
	case errors.Is(err, ErrSocketCreate), errors.Is(err, ErrSocketBind),
		errors.Is(err, ErrSocketListen), errors.Is(err, ErrSocketAccept),
		errors.Is(err, ErrSocketSend), errors.Is(err, ErrSocketRecv):
		return 425
	case errors.Is(err, ErrFileOpen), errors.Is(err, ErrFileRead),
		errors.Is(err, ErrFileWrite), errors.Is(err, ErrFileStat), errors.Is(err, ErrDirOpen):
		return 451
	default:
		return 451
	}
}

package wire

// Operation represents a request operation.
type Operation uint8

const (
	// OpLogOnAnonymous requests an anonymous session identity.
	OpLogOnAnonymous Operation = 1

	// OpLogOff releases the session identity.
	OpLogOff Operation = 2

	// OpQueryStat reads the current value of a numeric statistic.
	OpQueryStat Operation = 3
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpLogOnAnonymous:
		return "LogOnAnonymous"
	case OpLogOff:
		return "LogOff"
	case OpQueryStat:
		return "QueryStat"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation is known.
func (o Operation) IsValid() bool {
	return o >= OpLogOnAnonymous && o <= OpQueryStat
}

// Result is the outcome code carried by every response.
type Result uint8

const (
	// ResultInvalid is the zero value and never sent on the wire.
	ResultInvalid Result = 0

	// ResultOK indicates success.
	ResultOK Result = 1

	// ResultFail is a generic failure.
	ResultFail Result = 2

	// ResultLogonDenied indicates the platform refused the logon.
	ResultLogonDenied Result = 3

	// ResultNotLoggedOn indicates the request requires a logged-on session.
	ResultNotLoggedOn Result = 4

	// ResultBusy indicates the platform is busy; try again later.
	ResultBusy Result = 5

	// ResultRateLimited indicates too many requests from this session.
	ResultRateLimited Result = 6

	// ResultServiceUnavailable indicates the backing service is down.
	ResultServiceUnavailable Result = 7

	// ResultInvalidParam indicates a malformed or unknown parameter.
	ResultInvalidParam Result = 8

	// ResultTimeout indicates the platform timed out serving the request.
	ResultTimeout Result = 9
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case ResultInvalid:
		return "INVALID"
	case ResultOK:
		return "OK"
	case ResultFail:
		return "FAIL"
	case ResultLogonDenied:
		return "LOGON_DENIED"
	case ResultNotLoggedOn:
		return "NOT_LOGGED_ON"
	case ResultBusy:
		return "BUSY"
	case ResultRateLimited:
		return "RATE_LIMITED"
	case ResultServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case ResultInvalidParam:
		return "INVALID_PARAM"
	case ResultTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the result is ResultOK.
func (r Result) IsSuccess() bool {
	return r == ResultOK
}

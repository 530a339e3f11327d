package oai

// Protocol error codes defined by OAI-PMH 2.0. These are always reported
// inside the XML envelope, never as bare HTTP failures.
const (
	ErrBadVerb                 = "badVerb"
	ErrBadArgument             = "badArgument"
	ErrBadResumptionToken      = "badResumptionToken"
	ErrCannotDisseminateFormat = "cannotDisseminateFormat"
	ErrIDDoesNotExist          = "idDoesNotExist"
	ErrNoRecordsMatch          = "noRecordsMatch"
	ErrNoSetHierarchy          = "noSetHierarchy"
)

// protocolError is a well-formed OAI-PMH error response payload
type protocolError struct {
	code    string
	message string
}

func newProtocolError(code, message string) *protocolError {
	return &protocolError{code: code, message: message}
}

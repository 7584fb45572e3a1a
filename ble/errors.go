package ble

import "fmt"

// ATTError is an Attribute Protocol error-response status code, returned
// verbatim by a remote.Transport when the peer rejects a procedure.
type ATTError uint8

const (
	ErrAttrNotFound ATTError = 0x0A
)

func (e ATTError) Error() string {
	return fmt.Sprintf("att: error response 0x%02x", uint8(e))
}

// Package socket carries blink service calls over a local unix socket. Each
// message is a CBOR map with integer keys, sent as a length-prefixed frame.
package socket

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Request is one method call on the object at Path. Arguments the method
// does not take are left zero.
type Request struct {
	ID         uint64  `cbor:"1,keyasint"`
	Path       string  `cbor:"2,keyasint"`
	Method     string  `cbor:"3,keyasint"`
	Index      uint32  `cbor:"4,keyasint,omitempty"`
	R          byte    `cbor:"5,keyasint,omitempty"`
	G          byte    `cbor:"6,keyasint,omitempty"`
	B          byte    `cbor:"7,keyasint,omitempty"`
	Brightness float64 `cbor:"8,keyasint,omitempty"`
}

// Response answers the Request with the same ID. An empty Kind is success.
type Response struct {
	ID      uint64 `cbor:"1,keyasint"`
	Kind    string `cbor:"2,keyasint,omitempty"`
	Message string `cbor:"3,keyasint,omitempty"`
}

// KindUnavailable is sent when the service stopped before the call ran.
const KindUnavailable = "Unavailable"

func encodeRequest(req *Request) ([]byte, error) {
	if req.Method == "" {
		return nil, fmt.Errorf("invalid request: method is empty")
	}
	return encMode.Marshal(req)
}

func decodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := decMode.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

func encodeResponse(resp *Response) ([]byte, error) {
	return encMode.Marshal(resp)
}

func decodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := decMode.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

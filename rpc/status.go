package rpc

import (
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
)

// Code extracts the status code of a response, a missing status is
// treated as Unknown
func (c ResponseCommon) Code() codes.Code {
	if c.Status == nil {
		return codes.Unknown
	}
	return codes.Code(c.Status.GetCode())
}

// Message returns the status message of a response, empty when absent
func (c ResponseCommon) Message() string {
	return c.Status.GetMessage()
}

// OK returns true when the server reported success
func (c ResponseCommon) OK() bool {
	return c.Code() == codes.OK
}

// OKStatus builds the common of a successful response, test and fake
// server usage
func OKStatus() ResponseCommon {
	return ResponseCommon{Status: &rpcstatus.Status{Code: int32(codes.OK)}}
}

// ErrStatus builds the common carrying the given code and message
func ErrStatus(code codes.Code, msg string) ResponseCommon {
	return ResponseCommon{Status: &rpcstatus.Status{Code: int32(code), Message: msg}}
}

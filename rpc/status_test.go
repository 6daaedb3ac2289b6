package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestResponseCommonCode(t *testing.T) {
	assert.Equal(t, codes.Unknown, ResponseCommon{}.Code())
	assert.False(t, ResponseCommon{}.OK())

	ok := OKStatus()
	assert.Equal(t, codes.OK, ok.Code())
	assert.True(t, ok.OK())

	errCommon := ErrStatus(codes.ResourceExhausted, "too many requests")
	assert.Equal(t, codes.ResourceExhausted, errCommon.Code())
	assert.Equal(t, "too many requests", errCommon.Message())
	assert.False(t, errCommon.OK())
}

package client

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignerProducesMetadata(t *testing.T) {
	s := NewSigner(Credentials{AccessKey: "ak", AccessSecret: "secret"}, "arn:test", "client-1")

	md, err := s.Sign()
	assert.NoError(t, err)

	auth := md.Get(headerAuthorization)
	assert.Len(t, auth, 1)
	assert.True(t, strings.HasPrefix(auth[0], signatureAlgorithm))
	assert.Contains(t, auth[0], "Credential=ak/arn:test")

	assert.Len(t, md.Get(headerDateTime), 1)
	assert.Len(t, md.Get(headerRequestID), 1)
	assert.Equal(t, []string{"client-1"}, md.Get(headerClientID))

	// every request carries a fresh request id
	md2, err := s.Sign()
	assert.NoError(t, err)
	assert.NotEqual(t, md.Get(headerRequestID), md2.Get(headerRequestID))
}

func TestSignerEmptyCredentials(t *testing.T) {
	s := NewSigner(Credentials{}, "arn:test", "client-1")
	_, err := s.Sign()
	assert.Equal(t, errEmptyCredentials, err)
}

func TestBuildClientID(t *testing.T) {
	id1 := BuildClientID("group-a")
	id2 := BuildClientID("group-a")

	assert.Contains(t, id1, "group-a")
	assert.NotEqual(t, id1, id2)
	assert.Len(t, strings.Split(id1, "@"), 4)
}

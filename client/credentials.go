package client

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"
)

const (
	signatureAlgorithm = "MQv2-HMAC-SHA1"
	dateTimeFormat     = "20060102T150405Z"

	headerAuthorization = "authorization"
	headerDateTime      = "x-mq-date-time"
	headerRequestID     = "x-mq-request-id"
	headerClientID      = "x-mq-client-id"
	headerLanguage      = "x-mq-language"
	headerProtocol      = "x-mq-protocol-version"
)

var errEmptyCredentials = errors.New("sign error:empty access key or secret")

// Credentials the static access key pair used to sign every request
type Credentials struct {
	AccessKey     string
	AccessSecret  string
	SecurityToken string
}

// Signer stamps the bearer-style authentication headers onto outgoing
// request metadata
type Signer struct {
	credentials Credentials
	arn         string
	clientID    string
}

// NewSigner creates the signer bound to one client instance
func NewSigner(credentials Credentials, arn, clientID string) *Signer {
	return &Signer{credentials: credentials, arn: arn, clientID: clientID}
}

// Sign produces the metadata of one request, the signature covers the
// request date time
func (s *Signer) Sign() (metadata.MD, error) {
	if s.credentials.AccessKey == "" || s.credentials.AccessSecret == "" {
		return nil, errEmptyCredentials
	}

	dateTime := time.Now().UTC().Format(dateTimeFormat)

	mac := hmac.New(sha1.New, []byte(s.credentials.AccessSecret))
	mac.Write([]byte(dateTime))
	signature := hex.EncodeToString(mac.Sum(nil))

	authorization := fmt.Sprintf(
		"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		signatureAlgorithm, s.credentials.AccessKey, s.arn, headerDateTime, signature,
	)

	md := metadata.Pairs(
		headerAuthorization, authorization,
		headerDateTime, dateTime,
		headerRequestID, uuid.New().String(),
		headerClientID, s.clientID,
		headerLanguage, "GOLANG",
		headerProtocol, "v1",
	)
	if s.credentials.SecurityToken != "" {
		md.Set("x-mq-session-token", s.credentials.SecurityToken)
	}
	return md, nil
}

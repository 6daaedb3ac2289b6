package message

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/lonre/rocketmq-clients/route"
	"github.com/lonre/rocketmq-clients/rpc"
)

// Wrap converts one wire message into the client model, the body is
// checked against its digest and decoded per the body encoding, and the
// ack endpoints are stamped so later ack/nack/forward target the broker
// the message came from
func Wrap(m *rpc.Message, ackEndpoints route.Endpoints) (*Ext, error) {
	sys := &m.SystemAttribute
	if sys.MessageID == "" {
		return nil, fmt.Errorf("wrap message error:empty message id")
	}

	if err := verifyDigest(m.Body, sys.BodyDigest); err != nil {
		return nil, fmt.Errorf("wrap message %s error:%w", sys.MessageID, err)
	}

	body, err := decodeBody(m.Body, sys.BodyEncoding)
	if err != nil {
		return nil, fmt.Errorf("wrap message %s error:%w", sys.MessageID, err)
	}

	attempt := sys.DeliveryAttempt
	if attempt < 1 {
		attempt = 1
	}

	// absent wire timestamps map to the zero time, not the epoch
	var deliveryTimestamp, bornTimestamp time.Time
	if sys.DeliveryTimestamp != nil {
		deliveryTimestamp = sys.DeliveryTimestamp.AsTime()
	}
	if sys.BornTimestamp != nil {
		bornTimestamp = sys.BornTimestamp.AsTime()
	}

	return &Ext{
		Topic:      m.Topic.Name,
		Body:       body,
		Properties: m.UserAttribute,
		System: SystemAttribute{
			MessageID:         sys.MessageID,
			ReceiptHandle:     sys.ReceiptHandle,
			QueueID:           sys.QueueID,
			QueueOffset:       sys.QueueOffset,
			DeliveryAttempt:   attempt,
			DeliveryTimestamp: deliveryTimestamp,
			InvisiblePeriod:   sys.InvisiblePeriod.AsDuration(),
			BornTimestamp:     bornTimestamp,
			AckEndpoints:      ackEndpoints,
		},
	}, nil
}

func verifyDigest(body []byte, digest rpc.Digest) error {
	if digest.Checksum == "" {
		return nil
	}

	var sum string
	switch digest.Type {
	case rpc.DigestTypeCRC32:
		sum = fmt.Sprintf("%08X", crc32.ChecksumIEEE(body))
	case rpc.DigestTypeMD5:
		s := md5.Sum(body)
		sum = hex.EncodeToString(s[:])
	case rpc.DigestTypeSHA1:
		s := sha1.Sum(body)
		sum = hex.EncodeToString(s[:])
	default:
		return fmt.Errorf("unsupported body digest type:%d", digest.Type)
	}

	if !bytes.EqualFold([]byte(sum), []byte(digest.Checksum)) {
		return fmt.Errorf("body digest mismatch, expect:%s, got:%s", digest.Checksum, sum)
	}
	return nil
}

func decodeBody(body []byte, encoding rpc.Encoding) ([]byte, error) {
	switch encoding {
	case rpc.EncodingIdentity:
		return body, nil
	case rpc.EncodingGzip:
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case rpc.EncodingZlib:
		r, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unsupported body encoding:%d", encoding)
	}
}

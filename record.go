package tlsclient

import (
	"encoding/binary"
	"io"

	"github.com/brickingsoft/errors"
)

const (
	VersionTLS12 uint16 = 0x0303
	VersionTLS13 uint16 = 0x0304
)

type recordType uint8

const (
	recordTypeChangeCipherSpec recordType = 20
	recordTypeAlert            recordType = 21
	recordTypeHandshake        recordType = 22
	recordTypeApplicationData  recordType = 23
)

const (
	recordHeaderLen = 5
	maxPlaintext    = 16384
	// maxCiphertext is the TLS 1.3 record expansion limit from RFC 8446,
	// Section 5.2: plaintext, inner type byte, and AEAD overhead within 256.
	maxCiphertext = maxPlaintext + 256
)

var (
	errRecordOverflow  = errors.Define("tls: oversized record received")
	errBadRecordType   = errors.Define("tls: unknown record type")
	errBadInnerRecord  = errors.Define("tls: encrypted record without content type")
	errDecryptFailed   = errors.Define("tls: record decryption failed")
	errUnexpectedAlert = errors.Define("tls: remote alert")
)

// sendRecord frames payload as a single record of type typ and writes it to
// the transport. When the outbound keys are active the record is sealed with
// the final header as additional data and carried as application_data with
// the real type moved inside, per RFC 8446, Section 5.2. payload must not
// exceed maxPlaintext; Write chunks above this layer.
func (c *Client) sendRecord(typ recordType, payload []byte) error {
	if len(payload) > maxPlaintext {
		return errRecordOverflow
	}
	c.sendBuf.SetSize(0)
	c.sendBuf.ResetRead()

	if c.out.active() {
		c.sendBuf.AppendByte(byte(recordTypeApplicationData))
		c.sendBuf.AppendUint16(VersionTLS12)
		c.sendBuf.AppendUint16(uint16(len(payload) + 1 + c.out.aead.Overhead()))

		inner := make([]byte, 0, len(payload)+1)
		inner = append(inner, payload...)
		inner = append(inner, byte(typ))

		header := c.sendBuf.Bytes()[:recordHeaderLen]
		dst := c.sendBuf.Allocate(len(inner) + c.out.aead.Overhead())
		sealed, err := c.out.seal(dst[:0], inner, header)
		if err != nil {
			return err
		}
		c.sendBuf.AllocatedWrote(len(sealed))
	} else {
		c.sendBuf.AppendByte(byte(typ))
		c.sendBuf.AppendUint16(VersionTLS12)
		lenOff := c.sendBuf.Reserve(2)
		body := c.sendBuf.Append(payload)
		c.sendBuf.PatchUint16(lenOff, uint16(c.sendBuf.Len()-body))
	}

	c.log.Trace().
		Uint8("type", uint8(typ)).
		Int("len", len(payload)).
		Bool("sealed", c.out.active()).
		Msg("send record")

	data := c.sendBuf.Bytes()
	for len(data) > 0 {
		n, err := c.tr.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// sendAlert writes an alert record. close_notify and user_canceled go out at
// warning level, everything else is fatal.
func (c *Client) sendAlert(a alert) error {
	level := byte(alertLevelError)
	if a == alertCloseNotify || a == alertUserCanceled {
		level = alertLevelWarning
	}
	return c.sendRecord(recordTypeAlert, []byte{level, byte(a)})
}

// fillRecv blocks until at least n bytes are buffered from the transport.
func (c *Client) fillRecv(n int) error {
	for c.recvBuf.Len() < n {
		p := c.recvBuf.Allocate(4096)
		read, err := c.tr.Read(p)
		if read > 0 {
			c.recvBuf.AllocatedWrote(read)
		}
		if err != nil {
			if err == io.EOF && c.recvBuf.Len() >= n {
				return nil
			}
			return err
		}
	}
	return nil
}

// readRecord blocks for the next complete record, decrypts it when the
// inbound keys are active, and returns the real content type and plaintext.
// ChangeCipherSpec records pass through for the caller to ignore. Alerts are
// resolved here: close_notify maps to io.EOF, fatal alerts to an error.
func (c *Client) readRecord() (recordType, []byte, error) {
	if err := c.fillRecv(recordHeaderLen); err != nil {
		return 0, nil, err
	}
	header := c.recvBuf.Bytes()[:recordHeaderLen]
	typ := recordType(header[0])
	length := int(binary.BigEndian.Uint16(header[3:]))

	switch typ {
	case recordTypeChangeCipherSpec, recordTypeAlert, recordTypeHandshake, recordTypeApplicationData:
	default:
		_ = c.sendAlert(alertUnexpectedMessage)
		return 0, nil, errors.New(
			"tls: unknown record type",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithWrap(errBadRecordType),
		)
	}
	if length > maxCiphertext {
		_ = c.sendAlert(alertRecordOverflow)
		return 0, nil, errRecordOverflow
	}

	if err := c.fillRecv(recordHeaderLen + length); err != nil {
		return 0, nil, err
	}
	raw := c.recvBuf.Bytes()[:recordHeaderLen+length]
	hdr := append([]byte(nil), raw[:recordHeaderLen]...)
	payload := append([]byte(nil), raw[recordHeaderLen:]...)
	c.recvBuf.Discard(recordHeaderLen + length)

	if c.in.active() && typ == recordTypeApplicationData {
		plaintext, err := c.in.open(payload[:0], payload, hdr)
		if err != nil {
			_ = c.sendAlert(alertBadRecordMAC)
			return 0, nil, errors.New(
				"tls: record decryption failed",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithWrap(errDecryptFailed),
			)
		}
		// Strip zero padding from the right; the last nonzero byte is the
		// inner content type.
		i := len(plaintext) - 1
		for i >= 0 && plaintext[i] == 0 {
			i--
		}
		if i < 0 {
			_ = c.sendAlert(alertUnexpectedMessage)
			return 0, nil, errBadInnerRecord
		}
		typ = recordType(plaintext[i])
		plaintext = plaintext[:i]
		if len(plaintext) > maxPlaintext {
			_ = c.sendAlert(alertRecordOverflow)
			return 0, nil, errRecordOverflow
		}
		payload = plaintext
	}

	c.log.Trace().
		Uint8("type", uint8(typ)).
		Int("len", len(payload)).
		Msg("recv record")

	if typ == recordTypeAlert {
		return typ, nil, c.handleAlert(payload)
	}
	return typ, payload, nil
}

func (c *Client) handleAlert(payload []byte) error {
	if len(payload) != 2 {
		return errUnexpectedAlert
	}
	a := alert(payload[1])
	if a == alertCloseNotify {
		return io.EOF
	}
	c.log.Debug().Str("alert", a.String()).Msg("remote alert")
	return errors.New(
		"tls: remote alert",
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta("alert", a.String()),
		errors.WithWrap(a),
	)
}

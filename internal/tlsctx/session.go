package tlsctx

import (
	"bytes"
	"crypto/tls"
	"encoding/binary"
	"time"
)

// SessionTimeout bounds how long an issued session ticket can be resumed.
const SessionTimeout = 300 * time.Second

// issuedTag prefixes the issue timestamp stored in SessionState.Extra.
var issuedTag = []byte("tlsecho-issued:")

// enableSessionCache installs ticket wrappers on cfg that stamp each ticket
// with its issue time and refuse resumption after SessionTimeout.
func enableSessionCache(cfg *tls.Config, now func() time.Time) {
	cfg.SessionTicketsDisabled = false

	cfg.WrapSession = func(cs tls.ConnectionState, ss *tls.SessionState) ([]byte, error) {
		if _, ok := issuedAt(ss.Extra); !ok {
			ss.Extra = append(ss.Extra, stampIssued(now()))
		}
		return cfg.EncryptTicket(cs, ss)
	}

	cfg.UnwrapSession = func(identity []byte, cs tls.ConnectionState) (*tls.SessionState, error) {
		ss, err := cfg.DecryptTicket(identity, cs)
		if err != nil || ss == nil {
			return nil, err
		}
		issued, ok := issuedAt(ss.Extra)
		if !ok || now().Sub(issued) > SessionTimeout {
			return nil, nil
		}
		return ss, nil
	}
}

func stampIssued(t time.Time) []byte {
	stamp := make([]byte, len(issuedTag)+8)
	copy(stamp, issuedTag)
	binary.BigEndian.PutUint64(stamp[len(issuedTag):], uint64(t.Unix()))
	return stamp
}

func issuedAt(extra [][]byte) (time.Time, bool) {
	for _, e := range extra {
		if len(e) == len(issuedTag)+8 && bytes.HasPrefix(e, issuedTag) {
			return time.Unix(int64(binary.BigEndian.Uint64(e[len(issuedTag):])), 0), true
		}
	}
	return time.Time{}, false
}

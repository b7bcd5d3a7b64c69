package sob

import (
	"strconv"
	"strings"

	"github.com/eoscore/eoscore/cmn"
)

// Cmd is the mqsh.cmd wire value (spec §4.1 "Message envelopes").
type Cmd string

const (
	CmdUpdate    Cmd = "update"
	CmdBCReply   Cmd = "bcreply"
	CmdBCRequest Cmd = "bcrequest"
	CmdDelete    Cmd = "delete"
)

// Envelope is the parsed form of one broker message body: a flat
// key=value&... association (spec §4.1/§6).
type Envelope struct {
	Cmd     Cmd
	Subject string
	Type    Kind
	Pairs   []Entry  // mqsh.pairs, present for update/bcreply
	Keys    []string // mqsh.keys, present for delete
	ReplyTo string   // present for bcrequest
}

// EncodePairs implements the wire format:
//
//	|<key>~<value>%<change_id>  (repeated)
func EncodePairs(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteByte('|')
		b.WriteString(e.Key)
		b.WriteByte('~')
		b.WriteString(e.Value)
		b.WriteByte('%')
		b.WriteString(strconv.FormatInt(e.EntryChangeID, 10))
	}
	return b.String()
}

// ParsePairs is the receiving half: locate all '|', '~', '%' positions;
// their counts must be equal, and each triple yields one key/value/
// change_id (spec §4.1).
func ParsePairs(s string) ([]Entry, error) {
	if s == "" {
		return nil, nil
	}
	bars := indicesOf(s, '|')
	tildes := indicesOf(s, '~')
	pcts := indicesOf(s, '%')
	if len(bars) != len(tildes) || len(bars) != len(pcts) || len(bars) == 0 {
		return nil, &cmn.ErrInvalid{Reason: "mqsh.pairs: unbalanced delimiter counts"}
	}
	entries := make([]Entry, 0, len(bars))
	for i := range bars {
		keyStart := bars[i] + 1
		keyEnd := tildes[i]
		valStart := tildes[i] + 1
		valEnd := pcts[i]
		cidStart := pcts[i] + 1
		cidEnd := len(s)
		if i+1 < len(bars) {
			cidEnd = bars[i+1]
		}
		if keyEnd <= keyStart || valEnd <= valStart || cidEnd < cidStart {
			return nil, &cmn.ErrInvalid{Reason: "mqsh.pairs: malformed triple"}
		}
		cid, err := strconv.ParseInt(s[cidStart:cidEnd], 10, 64)
		if err != nil {
			return nil, &cmn.ErrInvalid{Reason: "mqsh.pairs: bad change_id"}
		}
		entries = append(entries, Entry{
			Key:           s[keyStart:keyEnd],
			Value:         s[valStart:valEnd],
			EntryChangeID: cid,
		})
	}
	return entries, nil
}

// EncodeKeys implements the wire format: |<key> (repeated).
func EncodeKeys(keys []string) string {
	var b strings.Builder
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
	}
	return b.String()
}

func ParseKeys(s string) []string {
	if s == "" {
		return nil
	}
	bars := indicesOf(s, '|')
	keys := make([]string, 0, len(bars))
	for i, pos := range bars {
		start := pos + 1
		end := len(s)
		if i+1 < len(bars) {
			end = bars[i+1]
		}
		keys = append(keys, s[start:end])
	}
	return keys
}

func indicesOf(s string, b byte) []int {
	var out []int
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			out = append(out, i)
		}
	}
	return out
}

// EncodeEnvelope renders the flat "mqsh.cmd=...&mqsh.subject=..." body.
func EncodeEnvelope(env Envelope) string {
	parts := []string{
		"mqsh.cmd=" + string(env.Cmd),
		"mqsh.subject=" + env.Subject,
		"mqsh.type=" + string(env.Type),
	}
	if len(env.Pairs) > 0 {
		parts = append(parts, "mqsh.pairs="+EncodePairs(env.Pairs))
	}
	if len(env.Keys) > 0 {
		parts = append(parts, "mqsh.keys="+EncodeKeys(env.Keys))
	}
	if env.ReplyTo != "" {
		parts = append(parts, "mqsh.replyto="+env.ReplyTo)
	}
	return strings.Join(parts, "&")
}

// ParseEnvelope is the inverse of EncodeEnvelope.
func ParseEnvelope(body string) (Envelope, error) {
	var env Envelope
	for _, kv := range strings.Split(body, "&") {
		if kv == "" {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			return env, &cmn.ErrInvalid{Reason: "envelope: missing '=' in " + kv}
		}
		key, val := kv[:eq], kv[eq+1:]
		switch key {
		case "mqsh.cmd":
			env.Cmd = Cmd(val)
		case "mqsh.subject":
			env.Subject = val
		case "mqsh.type":
			env.Type = Kind(val)
		case "mqsh.pairs":
			pairs, err := ParsePairs(val)
			if err != nil {
				return env, err
			}
			env.Pairs = pairs
		case "mqsh.keys":
			env.Keys = ParseKeys(val)
		case "mqsh.replyto":
			env.ReplyTo = val
		}
	}
	switch env.Cmd {
	case CmdUpdate, CmdBCReply, CmdBCRequest, CmdDelete:
	default:
		return env, &cmn.ErrInvalid{Reason: "envelope: unknown mqsh.cmd " + string(env.Cmd)}
	}
	if env.Subject == "" {
		return env, &cmn.ErrInvalid{Reason: "envelope: missing mqsh.subject"}
	}
	return env, nil
}

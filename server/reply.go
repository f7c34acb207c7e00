package server

import (
	"bytes"
	"fmt"
)

// defaultReplyText holds the stock reply text for every code this server can
// emit (§6). Handlers normally pass their own message to reply(), but
// replyError and any handler that only has a bare status code to work with
// fall back to this table rather than sending a blank reply line.
var defaultReplyText = map[int]string{
	150: "File status okay; about to open data connection.",
	200: "Command okay.",
	211: "System status.",
	212: "Directory status.",
	213: "File status.",
	214: "Help message.",
	215: "System type.",
	220: "Service ready for new user.",
	221: "Service closing control connection.",
	225: "Data connection open; no transfer in progress.",
	226: "Closing data connection; requested file action successful.",
	227: "Entering Passive Mode.",
	230: "User logged in, proceed.",
	234: "Command okay; proceeding with security mechanism.",
	250: "Requested file action okay, completed.",
	257: "Pathname created.",
	331: "User name okay, need password.",
	350: "Requested file action pending further information.",
	421: "Service not available, closing control connection.",
	425: "Can't open data connection.",
	426: "Connection closed; transfer aborted.",
	450: "Requested file action not taken.",
	451: "Requested action aborted; local error in processing.",
	452: "Requested action not taken; insufficient storage space.",
	500: "Syntax error, command unrecognized.",
	501: "Syntax error in parameters or arguments.",
	502: "Command not implemented.",
	503: "Bad sequence of commands.",
	504: "Command not implemented for that parameter.",
	530: "Not logged in.",
	532: "Need account for storing files.",
	550: "Requested action not taken; file unavailable.",
	551: "Requested action aborted; page type unknown.",
	552: "Requested file action aborted; exceeded storage allocation.",
	553: "Requested action not taken; file name not allowed.",
}

// replyDefault sends code with its stock text from defaultReplyText. It is
// the fallback used when a caller only has a numeric reply code to work
// with, such as a mapped ftperr code with no handler-specific message.
func (s *session) replyDefault(code int) {
	text, ok := defaultReplyText[code]
	if !ok {
		text = "Unspecified error."
	}
	s.reply(code, text)
}

// replyMultiline sends a multi-line reply in the RFC 959 continuation
// format: the first line uses "code-" and every following line up to the
// last repeats the code with a leading space, the last uses "code ". Callers
// such as FEAT, STAT, and HELP use this instead of hand-writing each
// continuation line.
func (s *session) replyMultiline(code int, heading string, lines []string, trailer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d-%s\r\n", code, heading)
	for _, line := range lines {
		fmt.Fprintf(&buf, " %s\r\n", line)
	}
	fmt.Fprintf(&buf, "%d %s\r\n", code, trailer)
	s.writeControlLocked(buf.Bytes())
}

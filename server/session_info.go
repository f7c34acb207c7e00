package server

import (
	"fmt"
)

func (s *session) handleSIZE(path string) {
	if !s.isLoggedIn {
		s.reply(530, "Not logged in.")
		return
	}

	info, err := s.fs.GetFileInfo(path)
	if err != nil {
		s.reply(550, "Could not get file size.")
		return
	}

	s.reply(213, fmt.Sprintf("%d", info.Size()))
}

func (s *session) handleMDTM(path string) {
	if !s.isLoggedIn {
		s.reply(530, "Not logged in.")
		return
	}

	info, err := s.fs.GetFileInfo(path)
	if err != nil {
		s.reply(550, "Could not get file modification time.")
		return
	}

	// YYYYMMDDHHMMSS format
	// RFC 3659 Section 2.3: "Time values are always represented in UTC"
	s.reply(213, info.ModTime().UTC().Format("20060102150405"))
}

// handleFEAT advertises exactly the extension set this server implements
// (§6). There is no TLS/HASH/HOST/EPSV/EPRT/MFMT feature line, because none
// of those commands exist here.
func (s *session) handleFEAT(_ string) {
	features := []string{"SIZE", "MDTM", "REST STREAM", "APPE", "UTF8"}
	if !s.server.disableMLSD {
		features = append(features, "MLSD", "MLST")
	}
	features = append(features, "XCRYPT")

	s.replyMultiline(211, "Features:", features, "End")
}

// handleMLSD is a plain alias for LIST (§6: "MLSD is implemented as an
// alias of LIST rather than RFC 3659's structured facts format").
func (s *session) handleMLSD(arg string) {
	if s.server.disableMLSD {
		s.reply(502, "Command not implemented.")
		return
	}
	s.handleLIST(arg)
}

// handleMLST is not implemented; the server always replies 502 (§6).
func (s *session) handleMLST(_ string) {
	s.reply(502, "Command not implemented.")
}

package server

import (
	"fmt"
	"strings"
)

// handleMODE handles the MODE command.
// RFC 1123 requires Stream mode support.
func (s *session) handleMODE(arg string) {
	mode := strings.ToUpper(strings.TrimSpace(arg))
	switch mode {
	case "S":
		// Stream mode (default and only supported mode)
		s.reply(200, "Mode set to Stream.")
	case "B":
		s.reply(504, "Block mode not implemented.")
	case "C":
		s.reply(504, "Compressed mode not implemented.")
	default:
		s.reply(504, "Command not implemented for that parameter.")
	}
}

// handleSTRU handles the STRU command.
// RFC 1123 requires File structure support.
func (s *session) handleSTRU(arg string) {
	stru := strings.ToUpper(strings.TrimSpace(arg))
	switch stru {
	case "F":
		// File structure (default and only supported structure)
		s.reply(200, "Structure set to File.")
	case "R":
		s.reply(504, "Record structure not implemented.")
	case "P":
		s.reply(504, "Page structure not implemented.")
	default:
		s.reply(504, "Command not implemented for that parameter.")
	}
}

// handleSYST handles the SYST command, returning the server's configured
// system type (§6), default "UNIX Type: L8".
func (s *session) handleSYST(_ string) {
	s.reply(215, s.server.serverName)
}

// handleSTAT handles the STAT command.
// Returns connection status information.
func (s *session) handleSTAT(arg string) {
	if arg != "" {
		s.reply(502, "STAT with path not implemented. Use LIST instead.")
		return
	}

	var lines []string
	if s.isLoggedIn {
		lines = append(lines, fmt.Sprintf("Logged in as: %s", s.user))
	} else {
		lines = append(lines, "Not logged in")
	}

	typeName := "Binary"
	if s.transferType == "A" {
		typeName = "ASCII"
	}
	lines = append(lines, fmt.Sprintf("TYPE: %s, FORM: Nonprint; STRUcture: File; transfer MODE: Stream", typeName))

	if s.pasvList != nil {
		lines = append(lines, "Passive mode enabled")
	} else if s.activeIP != "" {
		lines = append(lines, fmt.Sprintf("Active mode: %s:%d", s.activeIP, s.activePort))
	}

	s.replyMultiline(211, "Status:", lines, "End of status")
}

// handleHELP handles the HELP command.
// Returns a list of supported commands.
func (s *session) handleHELP(arg string) {
	if arg != "" {
		s.reply(214, fmt.Sprintf("No help available for %s.", arg))
		return
	}

	lines := []string{
		"USER PASS QUIT NOOP SYST FEAT HELP STAT",
		"PWD CWD CDUP MKD RMD DELE RNFR RNTO",
		"LIST NLST MLSD MLST SIZE MDTM",
		"TYPE MODE STRU PORT PASV REST",
		"RETR STOR APPE AUTH",
	}
	s.replyMultiline(214, "The following commands are supported:", lines, "End of help")
}

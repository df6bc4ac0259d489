package api

import (
	"net/http"
	"strconv"
)

// handleDescriptorXML serves the device descriptor as a task-data XML
// document, the file a farm-management system would drop into TASKDATA/.
func (s *Server) handleDescriptorXML(w http.ResponseWriter, _ *http.Request) {
	data, err := s.task.Pool().XML()
	if err != nil {
		s.logger.Error("descriptor XML render failed", "error", err)
		writeInternalError(w, "failed to render descriptor")
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", `attachment; filename="TASKDATA.XML"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(data)
}

// handleDescriptorBinary serves the descriptor in the binary transfer
// format the harness would stream to a task controller.
func (s *Server) handleDescriptorBinary(w http.ResponseWriter, _ *http.Request) {
	data, err := s.task.Pool().Bytes()
	if err != nil {
		s.logger.Error("descriptor binary render failed", "error", err)
		writeInternalError(w, "failed to render descriptor")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(data)
}

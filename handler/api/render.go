package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bituncoin/btnledger/core"
	"github.com/bituncoin/btnledger/service/processor"
	"github.com/bituncoin/btnledger/store"
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) renderData(w http.ResponseWriter, data any) {
	s.write(w, http.StatusOK, envelope{Success: true, Data: data})
}

func (s *Server) renderCode(w http.ResponseWriter, status int, code, message string) {
	s.write(w, status, envelope{Success: false, Error: &apiError{Code: code, Message: message}})
}

// write encodes through the buffer pool so a failed encode never leaves a
// half-written body behind the status line.
func (s *Server) write(w http.ResponseWriter, status int, v envelope) {
	buf := s.bufs.Get()
	defer s.bufs.Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		s.logger.Error("encode response", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderErr(w http.ResponseWriter, err error) {
	switch {
	case store.IsErrNotFound(err):
		s.renderCode(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, processor.ErrTwoFactorRequired):
		s.renderCode(w, http.StatusUnauthorized, "2fa_required", err.Error())
	case errors.Is(err, processor.ErrBiometricRequired):
		s.renderCode(w, http.StatusUnauthorized, "biometric_required", err.Error())
	case errors.Is(err, processor.ErrNotCancellable):
		s.renderCode(w, http.StatusConflict, "not_cancellable", err.Error())
	case errors.Is(err, core.ErrSecurityDenied):
		s.renderCode(w, http.StatusForbidden, "security_denied", err.Error())
	case errors.Is(err, core.ErrInvalidEnrollment):
		s.renderCode(w, http.StatusBadRequest, "invalid_enrollment", err.Error())
	case errors.Is(err, core.ErrInsufficientFunds):
		s.renderCode(w, http.StatusBadRequest, "insufficient_funds", err.Error())
	case errors.Is(err, core.ErrBelowMinimumStake):
		s.renderCode(w, http.StatusBadRequest, "below_minimum_stake", err.Error())
	case errors.Is(err, core.ErrLockPeriodActive):
		s.renderCode(w, http.StatusBadRequest, "lock_period_active", err.Error())
	case errors.Is(err, core.ErrUnsupportedPair):
		s.renderCode(w, http.StatusBadRequest, "unsupported_pair", err.Error())
	case errors.Is(err, core.ErrQuoteExpired):
		s.renderCode(w, http.StatusConflict, "quote_expired", err.Error())
	case errors.Is(err, core.ErrConcurrentModification):
		s.renderCode(w, http.StatusConflict, "concurrent_modification", err.Error())
	default:
		s.logger.Error("internal error", "err", err)
		s.renderCode(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

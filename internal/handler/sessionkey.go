package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	apperrors "github.com/vaultline/aa-relayer-go/internal/errors"
	"github.com/vaultline/aa-relayer-go/internal/httputil"
	"github.com/vaultline/aa-relayer-go/internal/service"
)

// SessionKeyHandler is the internal administrative surface for issuing and
// revoking session keys. It returns calldata for the on-chain registration;
// submitting that calldata is the caller's job.
type SessionKeyHandler struct {
	service *service.SessionKeyService
}

func NewSessionKeyHandler(svc *service.SessionKeyService) *SessionKeyHandler {
	return &SessionKeyHandler{service: svc}
}

func (h *SessionKeyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Issue)
	r.Post("/{id}/signatures", h.Sign)
	r.Delete("/{id}", h.Revoke)
	return r
}

type issueSessionKeyRequest struct {
	AccountAddress string          `json:"accountAddress"`
	Policy         json.RawMessage `json:"policy"`
	TTLSeconds     int             `json:"ttlSeconds"`
}

type issueSessionKeyResponse struct {
	ID                   string          `json:"id"`
	PublicKey            string          `json:"publicKey"`
	Policy               json.RawMessage `json:"policy"`
	ExpiresAt            time.Time       `json:"expiresAt"`
	RegistrationCallData string          `json:"registrationCallData"`
}

func (h *SessionKeyHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueSessionKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	result, err := h.service.Issue(r.Context(), req.AccountAddress, req.Policy,
		time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, issueSessionKeyResponse{
		ID:                   result.Key.ID,
		PublicKey:            result.Key.PublicKey,
		Policy:               result.Key.Policy,
		ExpiresAt:            result.Key.ExpiresAt,
		RegistrationCallData: hexutil.Encode(result.RegistrationCallData),
	})
}

type signRequest struct {
	Hash string `json:"hash"`
}

// Sign returns an EIP-191 signature over an operation hash, produced with
// the stored session key. Expired and revoked keys refuse to sign.
func (h *SessionKeyHandler) Sign(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	opHash, err := hexutil.Decode(req.Hash)
	if err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("hash", "not a hex string"))
		return
	}

	sig, err := h.service.Sign(r.Context(), chi.URLParam(r, "id"), opHash)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"signature": hexutil.Encode(sig),
	})
}

func (h *SessionKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	callData, err := h.service.Revoke(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"revocationCallData": hexutil.Encode(callData),
	})
}

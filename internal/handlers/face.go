package handlers

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"net/http"

	"nexus-backend/internal/models"
	"nexus-backend/internal/secure"
	"nexus-backend/internal/services"
)

// FaceHandler owns the enrollment surface: the encrypted registration upload
// and the public key the client wraps its session key with.
type FaceHandler struct {
	authService *services.AuthService
	privateKey  *rsa.PrivateKey
	publicPEM   []byte
	maxFrames   int
}

func NewFaceHandler(authService *services.AuthService, privateKey *rsa.PrivateKey, maxFrames int) (*FaceHandler, error) {
	publicPEM, err := secure.PublicKeyPEM(&privateKey.PublicKey)
	if err != nil {
		return nil, err
	}
	return &FaceHandler{
		authService: authService,
		privateKey:  privateKey,
		publicPEM:   publicPEM,
		maxFrames:   maxFrames,
	}, nil
}

// PublicKey serves the PEM key clients use for envelope encryption.
func (h *FaceHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	w.Write(h.publicPEM)
}

// Register accepts the envelope-encrypted capture burst plus profile fields
// (img1..imgN, nonce1..nonceN, encrypted_key, all base64) and creates the
// student once the frames decrypt and pass enrollment.
func (h *FaceHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid multipart body", r))
		return
	}

	env, err := h.envelopeFromForm(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
		return
	}

	frames, err := secure.Unpack(env, h.privateKey)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("DECRYPTION_FAILED", "Could not decrypt the submitted frames", r))
		return
	}

	profile := models.RegisterProfile{
		Name:     r.FormValue("name"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
		USN:      r.FormValue("usn"),
		Branch:   r.FormValue("branch"),
		Year:     r.FormValue("year"),
	}

	tokens, err := h.authService.RegisterStudent(r.Context(), profile, frames)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, tokens)
}

func (h *FaceHandler) envelopeFromForm(r *http.Request) (*secure.Envelope, error) {
	wrapped, err := base64.StdEncoding.DecodeString(r.FormValue("encrypted_key"))
	if err != nil || len(wrapped) == 0 {
		return nil, fmt.Errorf("encrypted_key is missing or not base64")
	}

	env := &secure.Envelope{WrappedKey: wrapped}
	for i := 1; i <= h.maxFrames; i++ {
		img := r.FormValue(fmt.Sprintf("img%d", i))
		nonce := r.FormValue(fmt.Sprintf("nonce%d", i))
		if img == "" && nonce == "" {
			break
		}
		ct, err := base64.StdEncoding.DecodeString(img)
		if err != nil || len(ct) == 0 {
			return nil, fmt.Errorf("img%d is missing or not base64", i)
		}
		n, err := base64.StdEncoding.DecodeString(nonce)
		if err != nil || len(n) == 0 {
			return nil, fmt.Errorf("nonce%d is missing or not base64", i)
		}
		env.Frames = append(env.Frames, ct)
		env.Nonces = append(env.Nonces, n)
	}

	if len(env.Frames) == 0 {
		return nil, fmt.Errorf("at least one encrypted frame is required")
	}
	return env, nil
}

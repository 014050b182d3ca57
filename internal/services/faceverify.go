package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// FaceVerifyService talks to the external embedding matcher. Enrollment and
// verification both go over multipart HTTP; the matcher owns the embeddings,
// this service never stores biometric data itself.
type FaceVerifyService struct {
	baseURL string
	client  *http.Client
}

func NewFaceVerifyService(baseURL string) *FaceVerifyService {
	return &FaceVerifyService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// RegisterFace enrolls the decrypted capture burst under a student's USN.
func (s *FaceVerifyService) RegisterFace(ctx context.Context, usn string, frames [][]byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("usn", usn); err != nil {
		return fmt.Errorf("building face register request: %w", err)
	}
	for i, frame := range frames {
		part, err := w.CreateFormFile(fmt.Sprintf("img%d", i+1), fmt.Sprintf("frame%d.jpg", i+1))
		if err != nil {
			return fmt.Errorf("building face register request: %w", err)
		}
		if _, err := part.Write(frame); err != nil {
			return fmt.Errorf("building face register request: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("building face register request: %w", err)
	}

	resp, err := s.post(ctx, "/register", w.FormDataContentType(), &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return &ConflictError{Message: "A face is already enrolled for this USN"}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("face service register returned %d: %s", resp.StatusCode, readBody(resp.Body))
	}
	return nil
}

// VerifyFace checks one frame against the enrolled embedding for a USN.
func (s *FaceVerifyService) VerifyFace(ctx context.Context, usn string, frame []byte) (bool, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("usn", usn); err != nil {
		return false, fmt.Errorf("building face verify request: %w", err)
	}
	part, err := w.CreateFormFile("img", "frame.jpg")
	if err != nil {
		return false, fmt.Errorf("building face verify request: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return false, fmt.Errorf("building face verify request: %w", err)
	}
	if err := w.Close(); err != nil {
		return false, fmt.Errorf("building face verify request: %w", err)
	}

	resp, err := s.post(ctx, "/verify", w.FormDataContentType(), &buf)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, &NotFoundError{Message: "No enrolled face for this USN"}
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("face service verify returned %d: %s", resp.StatusCode, readBody(resp.Body))
	}

	var result struct {
		Verified bool `json:"verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decoding face verify response: %w", err)
	}
	return result.Verified, nil
}

func (s *FaceVerifyService) post(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building face service request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling face service: %w", err)
	}
	return resp, nil
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(b)
}

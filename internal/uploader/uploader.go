// Package uploader implements NIP-96 multipart file upload authenticated
// with a NIP-98 event-signed Authorization header. It retries the upload
// with a handful of known form field names before giving up, and walks a
// short fallback chain to locate the uploaded file's URL in the server's
// response.
package uploader

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/nbd-wtf/go-nostr"

	"github.com/obscurnet/nativebridge/internal/netrt"
	"github.com/obscurnet/nativebridge/internal/session"
	"github.com/obscurnet/nativebridge/internal/signer"
)

const nip98EventKind = 27235

const expirationWindowSeconds = 120

var fieldNameFallbacks = []string{"file", "files[]", "files"}

// Result is the outcome of a successful upload.
type Result struct {
	URL string
}

// Uploader performs NIP-96 uploads against a single API endpoint style,
// reusing the NetworkRuntime's proxy/redirect policy and the Signer's
// active identity.
type Uploader struct {
	rt  *netrt.Runtime
	sig *signer.Signer
}

func New(rt *netrt.Runtime, sig *signer.Signer) *Uploader {
	return &Uploader{rt: rt, sig: sig}
}

// RedirectError is returned when the server answers with a 3xx; following
// it would invalidate the NIP-98 signature bound to the original URL.
type RedirectError struct {
	StatusCode int
	Location   string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("uploader: redirect to %q (status %d) not followed", e.Location, e.StatusCode)
}

// ServerError wraps a non-2xx, non-3xx response or an explicit
// status:"error" body.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("uploader: server error (status %d): %s", e.StatusCode, e.Message)
}

// ErrEmptyFile is returned before any network activity for a zero-byte
// payload.
var ErrEmptyFile = fmt.Errorf("uploader: empty file")

// Upload performs the full NIP-96/NIP-98 flow against apiURL.
func (u *Uploader) Upload(apiURL string, fileBytes []byte, fileName, contentType string) (*Result, error) {
	if len(fileBytes) == 0 {
		return nil, ErrEmptyFile
	}
	if !u.sig.Active() {
		return nil, fmt.Errorf("uploader: %w", session.ErrNoSession)
	}

	authHeader, err := u.buildAuthHeader(apiURL, fileBytes)
	if err != nil {
		return nil, err
	}

	client, err := u.rt.BuildHTTPClient()
	if err != nil {
		return nil, fmt.Errorf("uploader: build http client: %w", err)
	}

	var lastBody []byte
	var lastStatus int
	for i, field := range fieldNameFallbacks {
		status, body, err := postMultipart(client, apiURL, authHeader, field, fileName, contentType, fileBytes)
		if err != nil {
			return nil, err
		}
		if status == http.StatusBadRequest && strings.Contains(strings.ToLower(string(body)), "no files") && i < len(fieldNameFallbacks)-1 {
			lastBody, lastStatus = body, status
			continue
		}
		return parseUploadResponse(status, body)
	}
	return parseUploadResponse(lastStatus, lastBody)
}

func (u *Uploader) buildAuthHeader(apiURL string, fileBytes []byte) (string, error) {
	sum := sha256.Sum256(fileBytes)
	hash := hex.EncodeToString(sum[:])

	ev := &nostr.Event{
		Kind:    nip98EventKind,
		Content: "",
		Tags: nostr.Tags{
			{"u", apiURL},
			{"method", "POST"},
			{"payload", hash},
			{"expiration", fmt.Sprintf("%d", nostr.Now()+expirationWindowSeconds)},
		},
	}
	if err := u.sig.SignEvent(ev); err != nil {
		return "", fmt.Errorf("uploader: sign nip-98 event: %w", err)
	}
	evJSON, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("uploader: marshal nip-98 event: %w", err)
	}
	return "Nostr " + base64.StdEncoding.EncodeToString(evJSON), nil
}

func postMultipart(client *http.Client, apiURL, authHeader, fieldName, fileName, contentType string, fileBytes []byte) (int, []byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	partHeader := make(map[string][]string)
	partHeader["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldName, fileName)}
	if contentType != "" {
		partHeader["Content-Type"] = []string{contentType}
	}
	part, err := w.CreatePart(partHeader)
	if err != nil {
		return 0, nil, fmt.Errorf("uploader: create multipart part: %w", err)
	}
	if _, err := part.Write(fileBytes); err != nil {
		return 0, nil, fmt.Errorf("uploader: write multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, nil, fmt.Errorf("uploader: close multipart writer: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, apiURL, &buf)
	if err != nil {
		return 0, nil, fmt.Errorf("uploader: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", authHeader)

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("uploader: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return resp.StatusCode, nil, &RedirectError{StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("uploader: read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// parseUploadResponse walks the fallback chain for locating the uploaded
// file's URL across the NIP-94 event, a bare `url` field, and both
// object and array forms of a `data` field.
func parseUploadResponse(status int, body []byte) (*Result, error) {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		if status < 200 || status >= 300 {
			return nil, &ServerError{StatusCode: status, Message: string(body)}
		}
		return nil, fmt.Errorf("uploader: unparseable response body: %w", err)
	}

	if statusField, ok := parsed["status"].(string); ok && strings.EqualFold(statusField, "error") {
		msg, _ := parsed["message"].(string)
		return nil, &ServerError{StatusCode: status, Message: msg}
	}

	if status < 200 || status >= 300 {
		return nil, &ServerError{StatusCode: status, Message: string(body)}
	}

	if url, ok := extractURL(parsed); ok {
		return &Result{URL: url}, nil
	}
	return nil, fmt.Errorf("uploader: response did not contain a file url")
}

func extractURL(parsed map[string]any) (string, bool) {
	if nip94, ok := parsed["nip94_event"].(map[string]any); ok {
		if tags, ok := nip94["tags"].([]any); ok {
			for _, t := range tags {
				tag, ok := t.([]any)
				if !ok || len(tag) < 2 {
					continue
				}
				name, _ := tag[0].(string)
				if name == "url" {
					if url, ok := tag[1].(string); ok {
						return url, true
					}
				}
			}
		}
	}

	if url, ok := parsed["url"].(string); ok {
		return url, true
	}

	if data, ok := parsed["data"].(map[string]any); ok {
		if url, ok := data["url"].(string); ok {
			return url, true
		}
	}
	if dataList, ok := parsed["data"].([]any); ok && len(dataList) > 0 {
		if first, ok := dataList[0].(map[string]any); ok {
			if url, ok := first["url"].(string); ok {
				return url, true
			}
		}
	}

	return "", false
}

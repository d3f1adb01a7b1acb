// Package client calls the VQA Lens HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Kind    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// InitResult is the response of Init.
type InitResult struct {
	SessionID string `json:"session_id"`
	Caption   string `json:"caption"`
}

// OCRResult is the response of OCR.
type OCRResult struct {
	OCRID string `json:"ocr_id"`
	Text  string `json:"text"`
}

// Download is a fetched OCR attachment.
type Download struct {
	Filename string
	Body     []byte
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL. If httpClient is nil
// http.DefaultClient is used.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Init uploads an image and opens a session.
func (c *Client) Init(ctx context.Context, filename string, data []byte) (InitResult, error) {
	body, contentType, err := imageForm(filename, data, nil)
	if err != nil {
		return InitResult{}, err
	}
	var out InitResult
	err = c.do(ctx, http.MethodPost, "/api/vqa/init", contentType, body, &out)
	return out, err
}

// Ask asks a question about a session's image.
func (c *Client) Ask(ctx context.Context, sessionID, question string) (string, error) {
	form := url.Values{"session_id": {sessionID}, "question": {question}}
	var out struct {
		Answer string `json:"answer"`
	}
	err := c.do(ctx, http.MethodPost, "/api/vqa/ask", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()), &out)
	return out.Answer, err
}

// OCR uploads an image for text recognition. maxLength <= 0 leaves the
// server default.
func (c *Client) OCR(ctx context.Context, filename string, data []byte, maxLength int) (OCRResult, error) {
	var fields map[string]string
	if maxLength > 0 {
		fields = map[string]string{"max_length": strconv.Itoa(maxLength)}
	}
	body, contentType, err := imageForm(filename, data, fields)
	if err != nil {
		return OCRResult{}, err
	}
	var out OCRResult
	err = c.do(ctx, http.MethodPost, "/api/ocr", contentType, body, &out)
	return out, err
}

// Download fetches a stored OCR result.
func (c *Client) Download(ctx context.Context, ocrID string) (Download, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/ocr/"+url.PathEscape(ocrID)+"/download", "", nil)
	if err != nil {
		return Download{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Download{}, err
	}

	filename := localFilename("ocr_" + ocrID + ".txt")
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if name := localFilename(params["filename"]); name != "" {
			filename = name
		}
	}
	return Download{Filename: filename, Body: body}, nil
}

// localFilename strips any directory part so the name always lands in the
// working directory. It returns "" when nothing usable is left.
func localFilename(name string) string {
	name = filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if name == "/" || name == "." || name == ".." {
		return ""
	}
	return name
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	resp, err := c.send(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// send performs the request and turns error statuses into *APIError.
func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var payload struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Kind = payload.Kind
	}
	return nil, apiErr
}

func imageForm(filename string, data []byte, fields map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, filepath.Base(filename)))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/irdop/limschat/internal/model/chat"
)

// UploadFile posts one file to the upload service and returns the
// attachment descriptor. The optional progress callback receives the
// percentage of the request body consumed by the transport.
func (c *Client) UploadFile(ctx context.Context, filePath string, progress func(percent int)) (chat.Attachment, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("open %s: %w", filePath, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return chat.Attachment{}, fmt.Errorf("copy file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return chat.Attachment{}, fmt.Errorf("finish multipart body: %w", err)
	}

	reader := &progressReader{
		r:        bytes.NewReader(body.Bytes()),
		total:    int64(body.Len()),
		progress: progress,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, reader)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("X-App-ID", c.appID)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.ContentLength = int64(body.Len())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return chat.Attachment{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return chat.Attachment{}, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, truncate(data, 200))
	}

	var attachment chat.Attachment
	if err := json.Unmarshal(data, &attachment); err != nil {
		return chat.Attachment{}, fmt.Errorf("decode upload response: %w", err)
	}
	if attachment.OpaiFileID == "" {
		return chat.Attachment{}, fmt.Errorf("no opaiFileId returned from server")
	}
	attachment.LocalPath = filePath
	return attachment, nil
}

// progressReader reports cumulative read percentage as the HTTP transport
// drains the request body.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	progress func(percent int)

	mu   sync.Mutex
	last int
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 && p.progress != nil && p.total > 0 {
		p.mu.Lock()
		p.read += int64(n)
		percent := int(p.read * 100 / p.total)
		if percent > 100 {
			percent = 100
		}
		if percent != p.last {
			p.last = percent
			p.mu.Unlock()
			p.progress(percent)
			return n, err
		}
		p.mu.Unlock()
	}
	return n, err
}

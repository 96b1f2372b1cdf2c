package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/irdop/limschat/internal/api"
)

func TestGetMessagesSendsIDsAndHeader(t *testing.T) {
	var gotBody map[string][]string
	var gotAppID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/message/get" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAppID = r.Header.Get("X-App-ID")
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `[{"messageId":"m1","message":{"role":"assistant","content":"Hi"}}]`)
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, "LIMS-IRDOP-DEV")
	msgs, err := client.GetMessages(context.Background(), []string{"m1"})
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "Hi" {
		t.Fatalf("unexpected messages: %v", msgs)
	}
	if gotAppID != "LIMS-IRDOP-DEV" {
		t.Fatalf("X-App-ID = %q", gotAppID)
	}
	if len(gotBody["messageIds"]) != 1 || gotBody["messageIds"][0] != "m1" {
		t.Fatalf("unexpected body: %v", gotBody)
	}
}

func TestGetMessagesEmptySkipsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty id list")
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, "app")
	msgs, err := client.GetMessages(context.Background(), nil)
	if err != nil || msgs != nil {
		t.Fatalf("expected empty result, got %v, %v", msgs, err)
	}
}

func TestGetContextListNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if len(body) != 0 {
			t.Errorf("list request should send no body, got %s", body)
		}
		io.WriteString(w, `[{"contextId":"c1","title":"first"}]`)
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, "app")
	contexts, err := client.GetContextList(context.Background())
	if err != nil {
		t.Fatalf("GetContextList: %v", err)
	}
	if len(contexts) != 1 || contexts[0].Title != "first" {
		t.Fatalf("unexpected contexts: %v", contexts)
	}
}

func TestGetContextSendsBranchAnchor(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{"contextId":"c1","messageIds":["m1","m2"]}`)
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, "app")
	c, err := client.GetContext(context.Background(), "c1", "m2")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if gotBody["contextId"] != "c1" || gotBody["messageId"] != "m2" {
		t.Fatalf("unexpected body: %v", gotBody)
	}
	if len(c.OrderedMessageIDs()) != 2 {
		t.Fatalf("unexpected context: %+v", c)
	}
}

func TestSendMessageReturnsRawResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"payload":{"message":{"role":"assistant","content":"ok"}}}`)
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, "app")
	raw, err := client.SendMessage(context.Background(), map[string]string{"message": "hi"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	var env map[string]any
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("raw response not JSON: %v", err)
	}
}

func TestErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, "app")
	if _, err := client.GetContextList(context.Background()); err == nil {
		t.Fatal("expected error for 403")
	}
}

func TestUploadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	if err := os.WriteFile(path, []byte("analyte results"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		json.NewEncoder(w).Encode(map[string]any{
			"opaiFileId": "file-abc",
			"originInfo": map[string]any{
				"fileName": header.Filename,
				"fileSize": header.Size,
				"mimeType": "text/plain",
			},
		})
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, "app", api.WithUploadURL(srv.URL+"/v1/file/upload/opai"))

	var lastPercent int
	attachment, err := client.UploadFile(context.Background(), path, func(p int) { lastPercent = p })
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if attachment.OpaiFileID != "file-abc" {
		t.Fatalf("opaiFileId = %q", attachment.OpaiFileID)
	}
	if attachment.OriginInfo.FileName != "report.txt" {
		t.Fatalf("fileName = %q", attachment.OriginInfo.FileName)
	}
	if attachment.LocalPath != path {
		t.Fatalf("localPath = %q", attachment.LocalPath)
	}
	if lastPercent != 100 {
		t.Fatalf("final progress = %d, want 100", lastPercent)
	}
}

func TestUploadFileMissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.txt")
	os.WriteFile(path, []byte("x"), 0o644)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, "app", api.WithUploadURL(srv.URL))
	if _, err := client.UploadFile(context.Background(), path, nil); err == nil {
		t.Fatal("expected error when opaiFileId missing")
	}
}

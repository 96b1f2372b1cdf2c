package response_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/irdop/limschat/internal/model/chat"
	"github.com/irdop/limschat/internal/response"
)

func normalize(t *testing.T, raw string) chat.Message {
	t.Helper()
	msg, err := response.Normalize(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("Normalize(%s): %v", raw, err)
	}
	return msg
}

func TestNormalizeShapesAgree(t *testing.T) {
	// Equivalent role/content data must normalize identically no matter
	// which shape wrapped it.
	shapes := map[string]string{
		"direct":         `{"role":"assistant","content":"Hi"}`,
		"legacy payload": `{"payload":{"role":"assistant","content":"Hi"}}`,
		"full payload":   `{"payload":{"message":{"role":"assistant","content":"Hi"}}}`,
	}
	for name, raw := range shapes {
		msg := normalize(t, raw)
		if msg.Content != "Hi" {
			t.Fatalf("%s: content = %q, want %q", name, msg.Content, "Hi")
		}
		if msg.Role != chat.RoleAssistant {
			t.Fatalf("%s: role = %q", name, msg.Role)
		}
		if msg.IsError {
			t.Fatalf("%s: unexpected error flag", name)
		}
	}
}

func TestNormalizeErrorShape(t *testing.T) {
	msg := normalize(t, `{"error":"model overloaded","contextId":"ctx9"}`)
	if !msg.IsError {
		t.Fatal("expected error flag")
	}
	if msg.Content != "model overloaded" {
		t.Fatalf("content = %q", msg.Content)
	}
	if msg.Role != chat.RoleAssistant {
		t.Fatalf("role = %q", msg.Role)
	}
	if msg.ContextID != "ctx9" {
		t.Fatalf("contextId = %q", msg.ContextID)
	}
	if !chat.IsErrorID(msg.MessageID) {
		t.Fatalf("expected synthesized error id, got %q", msg.MessageID)
	}
}

func TestNormalizePayloadError(t *testing.T) {
	msg := normalize(t, `{"payload":{"error":{"code":500,"reason":"boom"}}}`)
	if !msg.IsError {
		t.Fatal("expected error flag")
	}
	if msg.Content != `{"code":500,"reason":"boom"}` {
		t.Fatalf("content = %q", msg.Content)
	}
}

func TestNormalizeErrorShapeWinsOverMessage(t *testing.T) {
	msg := normalize(t, `{"error":"nope","payload":{"message":{"role":"assistant","content":"Hi"}}}`)
	if !msg.IsError || msg.Content != "nope" {
		t.Fatalf("error shape should take priority: %+v", msg)
	}
}

func TestNormalizeFullPayloadFields(t *testing.T) {
	msg := normalize(t, `{
		"payload": {
			"messageId": "m42",
			"contextId": "ctx1",
			"message": {"role": "assistant", "content": {"text": "Hello"}},
			"model": "gpt-x",
			"classifierCode": "tra_cuu_thong_tin",
			"createdAt": "2025-03-04T05:06:07Z",
			"prevMessId": "m41"
		}
	}`)
	if msg.MessageID != "m42" || msg.ContextID != "ctx1" || msg.PrevMessID != "m41" {
		t.Fatalf("ids lost: %+v", msg)
	}
	if msg.Content != "Hello" {
		t.Fatalf("content = %q", msg.Content)
	}
	if msg.Model != "gpt-x" || msg.ClassifierCode != "tra_cuu_thong_tin" {
		t.Fatalf("metadata lost: %+v", msg)
	}
	if msg.CreatedAt.IsZero() {
		t.Fatal("createdAt not parsed")
	}
}

func TestNormalizeFullPayloadClassifierFromData(t *testing.T) {
	msg := normalize(t, `{
		"data": {"classifierCode": "phan_loai"},
		"payload": {"message": {"role": "assistant", "content": "ok"}}
	}`)
	if msg.ClassifierCode != "phan_loai" {
		t.Fatalf("classifierCode = %q", msg.ClassifierCode)
	}
	if !chat.IsTempID(msg.MessageID) {
		t.Fatalf("expected temp id when payload has none, got %q", msg.MessageID)
	}
}

func TestNormalizeLegacyPayloadFields(t *testing.T) {
	msg := normalize(t, `{
		"_msgid": "node-7",
		"timestamp": "2025-03-04T05:06:07Z",
		"data": {"model": "legacy-model"},
		"payload": {"role": "system", "content": "done"}
	}`)
	if msg.MessageID != "node-7" {
		t.Fatalf("messageId = %q", msg.MessageID)
	}
	if msg.Model != "legacy-model" {
		t.Fatalf("model = %q", msg.Model)
	}
	if msg.Role != chat.RoleSystem || msg.Content != "done" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.CreatedAt.IsZero() {
		t.Fatal("timestamp not parsed")
	}
}

func TestNormalizeUnrecognized(t *testing.T) {
	_, err := response.Normalize(json.RawMessage(`{"something":"else"}`))
	if !errors.Is(err, response.ErrUnrecognizedShape) {
		t.Fatalf("expected ErrUnrecognizedShape, got %v", err)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	if _, err := response.Normalize(json.RawMessage(`{"role":`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestLegacyClassification(t *testing.T) {
	rec, ok := response.Legacy(json.RawMessage(`{"type":"request_analytes_of_sample","analyte_results":[{"a":1}]}`))
	if !ok {
		t.Fatal("expected legacy record")
	}
	if rec.Kind != response.LegacyAnalytesOfSample {
		t.Fatalf("kind = %q", rec.Kind)
	}
	if len(rec.Data) == 0 {
		t.Fatal("data missing")
	}

	rec, ok = response.Legacy(json.RawMessage(`{"type":"asking_for_confirmation","analyte_matches":{"m":true}}`))
	if !ok || rec.Kind != response.LegacyConfirmation {
		t.Fatalf("unexpected record: %+v ok=%v", rec, ok)
	}

	rec, ok = response.Legacy(json.RawMessage(`{"content":"plain reply"}`))
	if !ok || rec.Kind != response.LegacyContent || rec.Content != "plain reply" {
		t.Fatalf("unexpected content record: %+v ok=%v", rec, ok)
	}

	if _, ok := response.Legacy(json.RawMessage(`{"something":"else"}`)); ok {
		t.Fatal("expected no legacy record")
	}
}

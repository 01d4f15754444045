package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"wecomctl/internal/config"
	"wecomctl/internal/wecom"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// fakeVendor records every API call and serves canned responses, standing
// in for the WeCom endpoints.
type fakeVendor struct {
	mu       sync.Mutex
	calls    []string // request paths in order
	sendBody map[string]any
	sendErr  string // when set, message/send answers with this errcode body
}

func (v *fakeVendor) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v.mu.Lock()
		v.calls = append(v.calls, r.URL.Path)
		v.mu.Unlock()

		switch r.URL.Path {
		case "/gettoken":
			fmt.Fprint(w, `{"errcode":0,"errmsg":"ok","access_token":"TOK"}`)
		case "/media/upload":
			fmt.Fprintf(w, `{"errcode":0,"errmsg":"ok","type":%q,"media_id":"MEDIA-UP"}`, r.URL.Query().Get("type"))
		case "/message/send":
			v.mu.Lock()
			json.NewDecoder(r.Body).Decode(&v.sendBody)
			errBody := v.sendErr
			v.mu.Unlock()
			if errBody != "" {
				fmt.Fprint(w, errBody)
				return
			}
			fmt.Fprint(w, `{"errcode":0,"errmsg":"ok","msgid":"MSGID-1"}`)
		default:
			t.Errorf("unexpected call: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})
}

func newDispatcher(t *testing.T, v *fakeVendor) *Dispatcher {
	t.Helper()
	srv := httptest.NewServer(v.handler(t))
	t.Cleanup(srv.Close)

	client, err := wecom.New(wecom.ClientConfig{BaseURL: srv.URL, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	cfg := &config.Config{CorpID: "ww1", CorpSecret: "s", AgentID: 1000002}
	return New(cfg, client, testLogger())
}

func writeTempFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_Text_NoUploadCall(t *testing.T) {
	v := &fakeVendor{}
	d := newDispatcher(t, v)

	res, err := d.Run(context.Background(), Request{Text: "hello", To: "alice"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"/gettoken", "/message/send"}
	if len(v.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, v.calls)
	}
	for i := range want {
		if v.calls[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, v.calls)
		}
	}

	if !res.OK || res.Type != "text" || res.To != "alice" || res.MsgID != "MSGID-1" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.MediaID != "" {
		t.Errorf("text result must not carry a media id: %+v", res)
	}
}

func TestRun_Image_UploadThenSend(t *testing.T) {
	v := &fakeVendor{}
	d := newDispatcher(t, v)
	path := writeTempFile(t, "photo.png")

	res, err := d.Run(context.Background(), Request{ImagePath: path, To: "alice"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"/gettoken", "/media/upload", "/message/send"}
	if len(v.calls) != 3 || v.calls[0] != want[0] || v.calls[1] != want[1] || v.calls[2] != want[2] {
		t.Fatalf("expected calls %v, got %v", want, v.calls)
	}

	if res.Type != "image" || res.MediaID != "MEDIA-UP" {
		t.Errorf("unexpected result: %+v", res)
	}
	image, ok := v.sendBody["image"].(map[string]any)
	if !ok || image["media_id"] != "MEDIA-UP" {
		t.Errorf("send must reference the uploaded media id: %v", v.sendBody)
	}
}

func TestRun_File_UploadKind(t *testing.T) {
	v := &fakeVendor{}
	d := newDispatcher(t, v)
	path := writeTempFile(t, "report.pdf")

	res, err := d.Run(context.Background(), Request{FilePath: path, To: "alice"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Type != "file" || res.MediaID != "MEDIA-UP" {
		t.Errorf("unexpected result: %+v", res)
	}
	if v.sendBody["msgtype"] != "file" {
		t.Errorf("msgtype mismatch: %v", v.sendBody["msgtype"])
	}
}

func TestRun_ImageTakesPrecedence(t *testing.T) {
	// Image wins over file and text when several are supplied.
	v := &fakeVendor{}
	d := newDispatcher(t, v)
	imagePath := writeTempFile(t, "a.png")
	filePath := writeTempFile(t, "b.pdf")

	res, err := d.Run(context.Background(), Request{
		Text:      "also text",
		ImagePath: imagePath,
		FilePath:  filePath,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Type != "image" {
		t.Fatalf("expected image precedence, got %q", res.Type)
	}
	if len(v.calls) != 3 {
		t.Fatalf("expected exactly one upload, calls: %v", v.calls)
	}
}

func TestRun_FileBeatsText(t *testing.T) {
	v := &fakeVendor{}
	d := newDispatcher(t, v)
	filePath := writeTempFile(t, "b.pdf")

	res, err := d.Run(context.Background(), Request{Text: "also text", FilePath: filePath})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Type != "file" {
		t.Fatalf("expected file precedence over text, got %q", res.Type)
	}
}

func TestRun_DefaultRecipient(t *testing.T) {
	v := &fakeVendor{}
	d := newDispatcher(t, v)

	res, err := d.Run(context.Background(), Request{Text: "hi"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.To != DefaultRecipient {
		t.Errorf("expected default recipient, got %q", res.To)
	}
	if v.sendBody["touser"] != DefaultRecipient {
		t.Errorf("touser mismatch: %v", v.sendBody["touser"])
	}
}

func TestRun_BroadcastRecipient(t *testing.T) {
	v := &fakeVendor{}
	d := newDispatcher(t, v)

	_, err := d.Run(context.Background(), Request{Text: "hi", To: wecom.RecipientAll})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if v.sendBody["touser"] != "@all" {
		t.Errorf("touser mismatch: %v", v.sendBody["touser"])
	}
	// Only the recipient changes; everything else keeps its shape.
	if v.sendBody["msgtype"] != "text" || v.sendBody["safe"] != float64(0) {
		t.Errorf("unexpected payload: %v", v.sendBody)
	}
}

func TestRun_MissingAttachment_AbortsBeforeUpload(t *testing.T) {
	v := &fakeVendor{}
	d := newDispatcher(t, v)

	_, err := d.Run(context.Background(), Request{ImagePath: "/nonexistent/x.png"})
	if err == nil {
		t.Fatal("expected error for missing attachment")
	}
	if len(v.calls) != 1 || v.calls[0] != "/gettoken" {
		t.Fatalf("expected only the token call, got %v", v.calls)
	}
}

func TestRun_SendError_Aborts(t *testing.T) {
	v := &fakeVendor{sendErr: `{"errcode":45009,"errmsg":"api freq out of limit"}`}
	d := newDispatcher(t, v)

	_, err := d.Run(context.Background(), Request{Text: "hi"})
	var apiErr *wecom.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Code != 45009 {
		t.Errorf("errcode mismatch: %d", apiErr.Code)
	}
}

func TestResult_JSONShape(t *testing.T) {
	res := &Result{OK: true, Type: "text", To: "alice", MsgID: "M1"}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if strings.Contains(got, "media_id") {
		t.Errorf("text result must omit media_id: %s", got)
	}
	want := `{"ok":true,"type":"text","to":"alice","msgid":"M1"}`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	res = &Result{OK: true, Type: "image", To: "alice", MediaID: "MED", MsgID: "M2"}
	data, _ = json.Marshal(res)
	if !strings.Contains(string(data), `"media_id":"MED"`) {
		t.Errorf("image result must carry media_id: %s", data)
	}
}

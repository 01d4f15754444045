package wecom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultBaseURL = "https://qyapi.weixin.qq.com/cgi-bin"

// Per-call deadlines. Uploads get longer because they carry file bytes.
const (
	callTimeout   = 10 * time.Second
	uploadTimeout = 30 * time.Second
)

// MediaKind selects the media type on the upload endpoint.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVoice MediaKind = "voice"
	MediaVideo MediaKind = "video"
	MediaFile  MediaKind = "file"
)

// APIError is a vendor response carrying a non-zero errcode.
type APIError struct {
	Op      string // API operation, e.g. "gettoken"
	Code    int
	Message string
	Body    string // raw response body
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wecom %s failed: %s", e.Op, e.Body)
}

// Client talks to the WeCom (WeChat Work) HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// ClientConfig configures the WeCom client.
type ClientConfig struct {
	ProxyURL string // optional HTTP(S) proxy for all API calls
	BaseURL  string // override for tests; defaults to the vendor endpoint
	Logger   *slog.Logger
}

// New creates a WeCom API client, routed through cfg.ProxyURL when set.
func New(cfg ClientConfig) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{}
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxy)}
	}

	return &Client{httpClient: httpClient, baseURL: base, logger: logger}, nil
}

// AccessToken exchanges the corp credentials for a short-lived token.
func (c *Client) AccessToken(ctx context.Context, corpID, corpSecret string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/gettoken?corpid=%s&corpsecret=%s",
		c.baseURL, url.QueryEscape(corpID), url.QueryEscape(corpSecret))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(req, "gettoken", &out); err != nil {
		return "", err
	}
	c.logger.Info("access token acquired")
	return out.AccessToken, nil
}

// UploadMedia uploads a local file as temporary media and returns the
// vendor media id, valid for the lifetime of the current token.
func (c *Client) UploadMedia(ctx context.Context, token, path string, kind MediaKind) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("media file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	// The vendor rejects some boundary characters; a uuid hex is safe.
	if err := w.SetBoundary(strings.ReplaceAll(uuid.NewString(), "-", "")); err != nil {
		return "", fmt.Errorf("multipart boundary: %w", err)
	}
	part, err := w.CreatePart(mediaPartHeader(filepath.Base(path)))
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read media file: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}

	u := fmt.Sprintf("%s/media/upload?access_token=%s&type=%s",
		c.baseURL, url.QueryEscape(token), kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out struct {
		MediaID string `json:"media_id"`
	}
	if err := c.do(req, "media/upload", &out); err != nil {
		return "", err
	}
	c.logger.Info("media uploaded", "kind", string(kind), "media_id", out.MediaID)
	return out.MediaID, nil
}

// Send delivers one message through the given agent and returns the
// vendor-assigned message id.
func (c *Client) Send(ctx context.Context, token string, agentID int, msg Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	payload := map[string]any{
		"touser":  msg.To,
		"msgtype": msg.Type,
		"agentid": agentID,
		"safe":    0,
	}
	switch msg.Type {
	case MsgTypeText:
		payload["text"] = map[string]string{"content": msg.Content}
	case MsgTypeImage:
		payload["image"] = map[string]string{"media_id": msg.MediaID}
	case MsgTypeFile:
		payload["file"] = map[string]string{"media_id": msg.MediaID}
	default:
		return "", fmt.Errorf("unsupported message type: %q", msg.Type)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	u := fmt.Sprintf("%s/message/send?access_token=%s", c.baseURL, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		MsgID string `json:"msgid"`
	}
	if err := c.do(req, "message/send", &out); err != nil {
		return "", err
	}
	c.logger.Info("message sent", "type", msg.Type, "to", msg.To, "msgid", out.MsgID)
	return out.MsgID, nil
}

// do executes req, surfaces a non-zero vendor errcode as *APIError, and
// decodes the body into out.
func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	var envelope struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	if envelope.ErrCode != 0 {
		return &APIError{Op: op, Code: envelope.ErrCode, Message: envelope.ErrMsg, Body: string(body)}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}

// mediaPartHeader builds the form-data part header for the media field,
// guessing the content type from the file extension.
func mediaPartHeader(filename string) textproto.MIMEHeader {
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="media"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	return h
}

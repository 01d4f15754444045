// Package dispatch runs the send pipeline: acquire a token, upload media
// when the message carries an attachment, send, report. Strictly forward;
// the first failure aborts the invocation.
package dispatch

import (
	"context"
	"log/slog"

	"wecomctl/internal/config"
	"wecomctl/internal/wecom"
)

// DefaultRecipient receives messages when no --to is given.
const DefaultRecipient = "LiXueHeng"

// Request carries the CLI arguments for one invocation. When more than
// one message source is set, precedence is image, then file, then text.
type Request struct {
	Text      string
	ImagePath string
	FilePath  string
	To        string
}

// Result is the success report, printed as a single JSON line.
type Result struct {
	OK      bool   `json:"ok"`
	Type    string `json:"type"`
	To      string `json:"to"`
	MediaID string `json:"media_id,omitempty"`
	MsgID   string `json:"msgid"`
}

// Dispatcher sends exactly one message per Run.
type Dispatcher struct {
	cfg    *config.Config
	client *wecom.Client
	logger *slog.Logger
}

func New(cfg *config.Config, client *wecom.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{cfg: cfg, client: client, logger: logger}
}

// Run executes the pipeline and returns the result. No retries: any
// failed stage surfaces its error and nothing further happens.
func (d *Dispatcher) Run(ctx context.Context, req Request) (*Result, error) {
	if req.To == "" {
		req.To = DefaultRecipient
	}

	token, err := d.client.AccessToken(ctx, d.cfg.CorpID, d.cfg.CorpSecret)
	if err != nil {
		return nil, err
	}

	var msg wecom.Message
	result := &Result{OK: true, To: req.To}
	switch {
	case req.ImagePath != "":
		mediaID, err := d.client.UploadMedia(ctx, token, req.ImagePath, wecom.MediaImage)
		if err != nil {
			return nil, err
		}
		msg = wecom.NewImage(req.To, mediaID)
		result.MediaID = mediaID
	case req.FilePath != "":
		mediaID, err := d.client.UploadMedia(ctx, token, req.FilePath, wecom.MediaFile)
		if err != nil {
			return nil, err
		}
		msg = wecom.NewFile(req.To, mediaID)
		result.MediaID = mediaID
	default:
		msg = wecom.NewText(req.To, req.Text)
	}
	result.Type = msg.Type

	msgID, err := d.client.Send(ctx, token, d.cfg.AgentID, msg)
	if err != nil {
		return nil, err
	}
	result.MsgID = msgID
	return result, nil
}

package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/coursehub/modhub/internal/ingest"
)

const (
	// Bot API download cap.
	mediaMaxBytes = 20 * 1024 * 1024

	downloadMaxRetries = 3

	// Relayed photos are downscaled to this bounding box before reupload.
	maxImageDim = 2048
)

// RelayMedia attaches the origin attachment under an already-posted card.
// The cheap path copies the message natively; when the bot cannot copy
// from the origin chat (Business DMs), it falls back to downloading the
// file and reuploading it.
func (b *HubBot) RelayMedia(ctx context.Context, ev ingest.Event, hubMessageID int) error {
	if !ev.HasMedia {
		return nil
	}

	_, copyErr := b.bot.CopyMessage(ctx, &telego.CopyMessageParams{
		ChatID:          tu.ID(b.cfg.Hub.HubChatID),
		FromChatID:      tu.ID(ev.ChatID),
		MessageID:       ev.MessageID,
		ReplyParameters: &telego.ReplyParameters{MessageID: hubMessageID},
	})
	if copyErr == nil {
		return nil
	}
	b.logger.Debug("native media copy failed, falling back to reupload",
		"chat_id", ev.ChatID, "message_id", ev.MessageID, "error", copyErr)

	if ev.MediaFileID == "" {
		return fmt.Errorf("copy media: %w", copyErr)
	}
	if ev.MediaFileSize > mediaMaxBytes {
		return fmt.Errorf("attachment too large to relay: %d bytes (max %d)", ev.MediaFileSize, mediaMaxBytes)
	}

	path, err := b.downloadMedia(ctx, ev.MediaFileID, mediaMaxBytes)
	if err != nil {
		return fmt.Errorf("download media: %w", err)
	}
	defer os.Remove(path)

	if ev.MediaType == "photo" {
		if fitted, fitErr := downscaleImage(path); fitErr == nil {
			defer os.Remove(fitted)
			path = fitted
		} else {
			b.logger.Debug("image downscale skipped", "error", fitErr)
		}
		return b.uploadPhoto(ctx, path, hubMessageID)
	}
	return b.uploadDocument(ctx, path, hubMessageID)
}

func (b *HubBot) uploadPhoto(ctx context.Context, path string, replyTo int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open media file: %w", err)
	}
	defer f.Close()

	params := tu.Photo(tu.ID(b.cfg.Hub.HubChatID), tu.File(f)).
		WithReplyParameters(&telego.ReplyParameters{MessageID: replyTo})
	if _, err := b.bot.SendPhoto(ctx, params); err != nil {
		return fmt.Errorf("reupload photo: %w", err)
	}
	return nil
}

func (b *HubBot) uploadDocument(ctx context.Context, path string, replyTo int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open media file: %w", err)
	}
	defer f.Close()

	params := tu.Document(tu.ID(b.cfg.Hub.HubChatID), tu.File(f)).
		WithReplyParameters(&telego.ReplyParameters{MessageID: replyTo})
	if _, err := b.bot.SendDocument(ctx, params); err != nil {
		return fmt.Errorf("reupload document: %w", err)
	}
	return nil
}

// downloadMedia downloads a file from Telegram by file_id with retry.
func (b *HubBot) downloadMedia(ctx context.Context, fileID string, maxBytes int64) (string, error) {
	var file *telego.File
	var err error

	for attempt := 1; attempt <= downloadMaxRetries; attempt++ {
		file, err = b.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
		if err == nil {
			break
		}
		if attempt < downloadMaxRetries {
			b.logger.Debug("retrying file download", "file_id", fileID, "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("get file info after %d attempts: %w", downloadMaxRetries, err)
	}

	if file.FilePath == "" {
		return "", fmt.Errorf("empty file path for file_id %s", fileID)
	}
	if int64(file.FileSize) > maxBytes {
		return "", fmt.Errorf("file too large: %d bytes (max %d)", file.FileSize, maxBytes)
	}

	downloadURL := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", b.cfg.Hub.BotToken, file.FilePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	ext := filepath.Ext(file.FilePath)
	if ext == "" {
		ext = ".bin"
	}
	tmpFile, err := os.CreateTemp("", "modhub_media_*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer tmpFile.Close()

	written, err := io.Copy(tmpFile, io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("save file: %w", err)
	}
	if written > maxBytes {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("file exceeds max size during download: %d bytes", written)
	}

	return tmpFile.Name(), nil
}

// downscaleImage fits an image into the relay bounding box and re-encodes
// it as JPEG. Returns the path of the new file.
func downscaleImage(path string) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxImageDim || bounds.Dy() > maxImageDim {
		img = imaging.Fit(img, maxImageDim, maxImageDim, imaging.Lanczos)
	}

	out := strings.TrimSuffix(path, filepath.Ext(path)) + "_fit.jpg"
	if err := imaging.Save(img, out, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return out, nil
}

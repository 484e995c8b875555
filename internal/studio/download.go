package studio

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"photostudio/internal/domain"
	"photostudio/internal/generation"
	"photostudio/internal/imagecodec"
	"photostudio/pkg/zip"
)

const downloadFailedMessage = "The image couldn't be prepared for download. Please try again."

// Download is a result ready to be saved as a file.
type Download struct {
	Filename string
	MIME     string
	Data     []byte
}

// DownloadFilename derives the file name for a task: the lower-cased ID
// with every run of non-alphanumeric characters folded to a single dash.
func DownloadFilename(taskID string) string {
	lower := cases.Lower(language.Und).String(taskID)
	var b strings.Builder
	dash := false
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	name := strings.TrimRight(b.String(), "-")
	if name == "" {
		name = "image"
	}
	return "photostudio-" + name + ".png"
}

// Download re-crops the succeeded result at index to 1:1.
func (s *Session) Download(ctx context.Context, index int) (*Download, error) {
	task, ok := s.controller.Task(index)
	if !ok {
		return nil, domain.ErrResultNotFound
	}
	if task.Status != generation.StatusSucceeded {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrResultNotReady, task.ID, task.Status)
	}
	return s.prepare(ctx, task)
}

// DownloadAll bundles every succeeded result into a zip archive.
func (s *Session) DownloadAll(ctx context.Context) ([]byte, error) {
	var ready []generation.Task
	for _, t := range s.controller.Snapshot().Tasks {
		if t.Status == generation.StatusSucceeded {
			ready = append(ready, t)
		}
	}
	if len(ready) == 0 {
		return nil, domain.ErrResultNotReady
	}

	downloads := make([]*Download, len(ready))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range ready {
		g.Go(func() error {
			d, err := s.prepare(gctx, t)
			if err != nil {
				return err
			}
			downloads[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]zip.Entry, len(downloads))
	for i, d := range downloads {
		entries[i] = zip.Entry{Filename: d.Filename, Data: d.Data}
	}
	return zip.Archive(entries)
}

func (s *Session) prepare(ctx context.Context, task generation.Task) (*Download, error) {
	cropped, err := s.codec.Crop(ctx, task.Result, imagecodec.Square)
	if err != nil {
		s.logger.Warn().Err(err).Str("task_id", task.ID).Msg("studio: download crop failed")
		s.Notify(domain.Notification{Kind: domain.NotificationCrop, Message: downloadFailedMessage})
		return nil, err
	}
	data, mime, err := imagecodec.DecodeDataURL(cropped)
	if err != nil {
		return nil, fmt.Errorf("studio: decode cropped %s: %w", task.ID, err)
	}
	return &Download{Filename: DownloadFilename(task.ID), MIME: mime, Data: data}, nil
}

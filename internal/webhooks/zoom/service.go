// Package zoomwebhook turns completed meeting recordings into draft videos.
package zoomwebhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/lessongate-backend/internal/audit"
	"github.com/angelmondragon/lessongate-backend/internal/videos"
	"github.com/angelmondragon/lessongate-backend/internal/webhooks"
	"github.com/angelmondragon/lessongate-backend/pkg/egress"
	"github.com/angelmondragon/lessongate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
	"github.com/angelmondragon/lessongate-backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	provider = string(enums.WebhookProviderZoom)

	EventURLValidation     = "endpoint.url_validation"
	EventRecordingComplete = "recording.completed"

	fileTypeMP4         = "MP4"
	preferredRecordType = "shared_screen_with_speaker_view"
)

// Event is the Zoom webhook envelope.
type Event struct {
	Event   string          `json:"event"`
	EventTS int64           `json:"event_ts"`
	Payload json.RawMessage `json:"payload"`
}

type validationPayload struct {
	PlainToken string `json:"plainToken"`
}

// ValidationResponse answers endpoint.url_validation.
type ValidationResponse struct {
	PlainToken     string `json:"plainToken"`
	EncryptedToken string `json:"encryptedToken"`
}

type recordingPayload struct {
	AccountID string          `json:"account_id"`
	Object    RecordingObject `json:"object"`
}

// RecordingObject is the meeting recording part of recording.completed.
type RecordingObject struct {
	UUID           string          `json:"uuid"`
	ID             json.Number     `json:"id"`
	Topic          string          `json:"topic"`
	StartTime      string          `json:"start_time"`
	Duration       int             `json:"duration"`
	RecordingFiles []RecordingFile `json:"recording_files"`
}

type RecordingFile struct {
	ID            string `json:"id"`
	FileType      string `json:"file_type"`
	RecordingType string `json:"recording_type"`
	DownloadURL   string `json:"download_url"`
	Status        string `json:"status"`
}

// Result is the outcome of one delivery plus the body to answer with.
type Result struct {
	Outcome    webhooks.Outcome
	Validation *ValidationResponse
	VideoID    string
}

type ServiceParams struct {
	Verifier       *Verifier
	Videos         *videos.Service
	Runner         *webhooks.Runner
	AllowedDomains []string
	Logger         *logger.Logger
}

type Service struct {
	verifier *Verifier
	videos   *videos.Service
	runner   *webhooks.Runner
	allowed  []string
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "zoom verifier required")
	}
	if params.Videos == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "videos service required")
	}
	if params.Runner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook runner required")
	}
	if len(params.AllowedDomains) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeMisconfigured, "zoom download domains are not configured")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{
		verifier: params.Verifier,
		videos:   params.Videos,
		runner:   params.Runner,
		allowed:  params.AllowedDomains,
		logg:     params.Logger,
	}, nil
}

// Receive verifies the signature headers and then handles the delivery.
func (s *Service) Receive(ctx context.Context, headers http.Header, body []byte) (*Result, error) {
	if err := s.verifier.Verify(headers, body); err != nil {
		return &Result{Outcome: webhooks.OutcomeRejected}, err
	}
	return s.HandleEvent(ctx, body)
}

// HandleEvent dispatches a verified delivery.
func (s *Service) HandleEvent(ctx context.Context, body []byte) (*Result, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return &Result{Outcome: webhooks.OutcomeRejected}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode zoom event")
	}

	switch event.Event {
	case EventURLValidation:
		var payload validationPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.PlainToken == "" {
			return &Result{Outcome: webhooks.OutcomeRejected}, pkgerrors.New(pkgerrors.CodeValidation, "plainToken is required")
		}
		return &Result{
			Outcome: webhooks.OutcomeProcessed,
			Validation: &ValidationResponse{
				PlainToken:     payload.PlainToken,
				EncryptedToken: s.verifier.EncryptToken(payload.PlainToken),
			},
		}, nil
	case EventRecordingComplete:
		return s.handleRecording(ctx, event)
	default:
		s.logg.Debug(s.logg.WithField(ctx, "event_type", event.Event), "zoom.event_ignored")
		return &Result{Outcome: webhooks.OutcomeIgnored}, nil
	}
}

// IdempotencyKey is the ledger key for a recording delivery.
func IdempotencyKey(recordingUUID string, eventTS int64) string {
	return recordingUUID + "_" + strconv.FormatInt(eventTS, 10)
}

func (s *Service) handleRecording(ctx context.Context, event Event) (*Result, error) {
	var payload recordingPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return &Result{Outcome: webhooks.OutcomeRejected}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode recording payload")
	}
	recording := payload.Object
	if strings.TrimSpace(recording.UUID) == "" {
		return &Result{Outcome: webhooks.OutcomeRejected}, pkgerrors.New(pkgerrors.CodeValidation, "recording uuid missing")
	}
	key := IdempotencyKey(recording.UUID, event.EventTS)
	ctx = s.logg.WithEvent(ctx, provider, key)

	file := pickMP4(recording.RecordingFiles)
	if file == nil {
		s.logg.Warn(s.logg.WithField(ctx, "recording_uuid", recording.UUID), "zoom.recording_without_mp4")
		return &Result{Outcome: webhooks.OutcomeIgnored}, nil
	}
	downloadURL, err := egress.ValidateDownloadURL(file.DownloadURL, s.allowed)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "recording_uuid", recording.UUID), "zoom.download_url_rejected")
		return &Result{Outcome: webhooks.OutcomeRejected}, err
	}

	var duration *int
	if recording.Duration > 0 {
		seconds := recording.Duration * 60
		duration = &seconds
	}

	result := &Result{}
	outcome, err := s.runner.Run(ctx, provider, key, EventRecordingComplete, func(ctx context.Context, tx *gorm.DB, rec audit.Recorder) error {
		video, created, err := s.videos.WithTx(tx, rec).IngestDraft(ctx, videos.Recording{
			Source:          enums.VideoSourceZoom,
			Ref:             recording.UUID,
			Title:           recording.Topic,
			DownloadURL:     downloadURL.String(),
			DurationSeconds: duration,
		})
		if err != nil {
			return err
		}
		result.VideoID = video.ID.String()
		if !created {
			s.logg.Info(s.logg.WithField(ctx, "video_id", result.VideoID), "zoom.recording_already_ingested")
		}
		return nil
	})
	result.Outcome = outcome
	return result, err
}

func pickMP4(files []RecordingFile) *RecordingFile {
	var fallback *RecordingFile
	for i := range files {
		f := &files[i]
		if !strings.EqualFold(f.FileType, fileTypeMP4) || f.DownloadURL == "" {
			continue
		}
		if f.Status != "" && !strings.EqualFold(f.Status, "completed") {
			continue
		}
		if f.RecordingType == preferredRecordType {
			return f
		}
		if fallback == nil {
			fallback = f
		}
	}
	return fallback
}

package service

import (
	"cad_practice_backend/internal/model"
	"cad_practice_backend/internal/onshape"
	"cad_practice_backend/internal/repository"
	"cad_practice_backend/internal/util"
	"cad_practice_backend/pkg/logger"
	"cad_practice_backend/pkg/monitoring"
	"cad_practice_backend/pkg/queue"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const captureViewSize = 128

// Trail walking is paged; a runaway attempt span is cut off rather than
// hammering the vendor.
const maxTrailPages = 50

// CaptureVendorAPI is the read-only slice of the Onshape client the capture
// worker queries against frozen microversions.
type CaptureVendorAPI interface {
	GetFeatureList(ctx context.Context, token, domain, etype, did, wvm, wvmid, eid string) (*onshape.FeatureList, error)
	GetAssemblyDefinition(ctx context.Context, token, domain, did, wvm, wvmid, eid string, includeMateFeatures bool) (*onshape.AssemblyDefinition, error)
	GetShadedView(ctx context.Context, token, domain, etype, did, wvm, wvmid, eid, viewMatrix string, height, width int) ([]byte, error)
	GetGLTFMesh(ctx context.Context, token, domain, did, mid, eid string) ([]byte, error)
	GetDocumentHistory(ctx context.Context, token, domain, did, mid string) ([]onshape.DocumentHistoryEntry, error)
}

// CaptureService runs the background telemetry jobs: it snapshots the
// user's model geometry at the microversions pinned in the job, uploads
// the image and mesh artifacts to object storage, and records the capture
// rows keyed by attempt.
type CaptureService struct {
	Captures *repository.CaptureRepository
	Users    *repository.UserRepository
	Vendor   CaptureVendorAPI
	Storage  *StorageService
	Auth     tokenRefresher
}

func NewCaptureService(
	captures *repository.CaptureRepository,
	users *repository.UserRepository,
	vendor CaptureVendorAPI,
	storage *StorageService,
	auth tokenRefresher,
) *CaptureService {
	return &CaptureService{
		Captures: captures,
		Users:    users,
		Vendor:   vendor,
		Storage:  storage,
		Auth:     auth,
	}
}

// Register wires the capture handlers onto the queue worker.
func (s *CaptureService) Register(w *queue.Worker) {
	w.Handle(JobFirstFailureCapture, s.instrumented("first_failure", s.HandleFirstFailure))
	w.Handle(JobFinalCapture, s.instrumented("final", s.HandleFinal))
	w.Handle(JobStepCapture, s.instrumented("step", s.HandleStep))
}

func (s *CaptureService) instrumented(kind string, h func(ctx context.Context, job CaptureJob) error) queue.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var job CaptureJob
		if err := json.Unmarshal(payload, &job); err != nil {
			monitoring.CaptureJobCounter.WithLabelValues(kind, "malformed").Inc()
			return err
		}
		if err := h(ctx, job); err != nil {
			monitoring.CaptureJobCounter.WithLabelValues(kind, "error").Inc()
			return err
		}
		monitoring.CaptureJobCounter.WithLabelValues(kind, "ok").Inc()
		return nil
	}
}

func (s *CaptureService) credential(ctx context.Context, job CaptureJob) (string, error) {
	user, err := s.Users.FindByOSUserID(job.OSUserID)
	if err != nil {
		return "", err
	}
	if err := s.Auth.EnsureFreshToken(ctx, user, evaluateRefreshLead); err != nil {
		return "", err
	}
	return user.AccessToken, nil
}

// ensureRecord finds the open capture for this user and question, creating
// one when the job is the first event of the attempt.
func (s *CaptureService) ensureRecord(job CaptureJob) (*model.CaptureRecord, error) {
	rec, err := s.Captures.FindOpen(job.OSUserID, job.QuestionID)
	if err == nil {
		return rec, nil
	}
	attempts, err := s.Captures.CountAttempts(job.OSUserID, job.QuestionID)
	if err != nil {
		return nil, err
	}
	rec = &model.CaptureRecord{
		OSUserID:       job.OSUserID,
		QuestionID:     job.QuestionID,
		QuestionType:   job.QuestionType,
		StartTime:      job.StartTime,
		AttemptNumber:  int(attempts) + 1,
		IsFinalFailure: true,
	}
	if err := s.Captures.Create(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// HandleFirstFailure snapshots the model as it stood at the first failed
// submission of an attempt.
func (s *CaptureService) HandleFirstFailure(ctx context.Context, job CaptureJob) error {
	token, err := s.credential(ctx, job)
	if err != nil {
		return err
	}
	rec, err := s.ensureRecord(job)
	if err != nil {
		return err
	}

	failedAt := job.SubmittedAt
	if job.QuestionType == model.QuestionTypeAssembly {
		def, err := s.Vendor.GetAssemblyDefinition(ctx, token, job.Domain, job.DocumentID, "m", job.EndMicroversion, job.ElementID, true)
		if err != nil {
			return err
		}
		views, err := s.captureViews(ctx, token, job, rec.ID, "failed")
		if err != nil {
			return err
		}
		return s.Captures.SaveAssembly(&model.CaptureAssembly{
			CaptureID:         rec.ID,
			FirstFailedAt:     &failedAt,
			FailedAssemblyDef: def.Raw,
			FailedViewKeys:    views,
		})
	}

	features, err := s.Vendor.GetFeatureList(ctx, token, job.Domain, string(job.ElementType), job.DocumentID, "m", job.EndMicroversion, job.ElementID)
	if err != nil {
		return err
	}
	views, err := s.captureViews(ctx, token, job, rec.ID, "failed")
	if err != nil {
		return err
	}
	meshKey, err := s.captureMesh(ctx, token, job, rec.ID, "failed")
	if err != nil {
		return err
	}
	return s.Captures.SavePartStudio(&model.CapturePartStudio{
		CaptureID:         rec.ID,
		FirstFailedAt:     &failedAt,
		FailedFeatureList: features.Raw,
		FailedViewKeys:    views,
		FailedMeshKey:     meshKey,
	})
}

// HandleFinal snapshots the terminal state of an attempt, a pass or a
// give-up, and closes the capture record with the microversion trail.
func (s *CaptureService) HandleFinal(ctx context.Context, job CaptureJob) error {
	token, err := s.credential(ctx, job)
	if err != nil {
		return err
	}
	rec, err := s.ensureRecord(job)
	if err != nil {
		return err
	}

	if job.QuestionType == model.QuestionTypeAssembly {
		def, err := s.Vendor.GetAssemblyDefinition(ctx, token, job.Domain, job.DocumentID, "m", job.EndMicroversion, job.ElementID, true)
		if err != nil {
			return err
		}
		views, err := s.captureViews(ctx, token, job, rec.ID, "final")
		if err != nil {
			return err
		}
		payload, err := s.Captures.FindAssembly(rec.ID)
		if err != nil {
			payload = &model.CaptureAssembly{CaptureID: rec.ID}
		}
		payload.FinalAssemblyDef = def.Raw
		payload.FinalViewKeys = views
		if err := s.Captures.SaveAssembly(payload); err != nil {
			return err
		}
	} else {
		features, err := s.Vendor.GetFeatureList(ctx, token, job.Domain, string(job.ElementType), job.DocumentID, "m", job.EndMicroversion, job.ElementID)
		if err != nil {
			return err
		}
		views, err := s.captureViews(ctx, token, job, rec.ID, "final")
		if err != nil {
			return err
		}
		meshKey, err := s.captureMesh(ctx, token, job, rec.ID, "final")
		if err != nil {
			return err
		}
		payload, err := s.Captures.FindPartStudio(rec.ID)
		if err != nil {
			payload = &model.CapturePartStudio{CaptureID: rec.ID}
		}
		payload.FinalFeatureList = features.Raw
		payload.FinalViewKeys = views
		payload.FinalMeshKey = meshKey
		if err := s.Captures.SavePartStudio(payload); err != nil {
			return err
		}
	}

	return s.closeRecord(ctx, token, job, rec)
}

// HandleStep records one passed step of a multi-step attempt; the final
// step additionally closes the capture record.
func (s *CaptureService) HandleStep(ctx context.Context, job CaptureJob) error {
	token, err := s.credential(ctx, job)
	if err != nil {
		return err
	}
	rec, err := s.ensureRecord(job)
	if err != nil {
		return err
	}

	features, err := s.Vendor.GetFeatureList(ctx, token, job.Domain, string(job.ElementType), job.DocumentID, "m", job.EndMicroversion, job.ElementID)
	if err != nil {
		return err
	}
	views, err := s.captureViews(ctx, token, job, rec.ID, fmt.Sprintf("step_%d", job.Step))
	if err != nil {
		return err
	}
	if err := s.Captures.CreateStep(&model.CaptureStep{
		CaptureID:   rec.ID,
		StepNumber:  job.Step,
		CompletedAt: job.SubmittedAt,
		FeatureList: features.Raw,
		ViewKeys:    views,
	}); err != nil {
		return err
	}

	if !job.FinalStep {
		return nil
	}
	return s.closeRecord(ctx, token, job, rec)
}

func (s *CaptureService) closeRecord(ctx context.Context, token string, job CaptureJob, rec *model.CaptureRecord) error {
	trail, err := s.microversionTrail(ctx, token, job)
	if err != nil {
		// The trail is supplementary; a history failure should not void
		// the geometry already captured.
		logger.Log.Warn("failed to walk document history",
			zap.String("document_id", job.DocumentID), zap.Error(err))
	} else {
		rec.MicroversionTrail = trail
	}

	completedAt := job.SubmittedAt
	now := time.Now()
	rec.CompletionTime = &completedAt
	rec.IsFinalFailure = job.IsFailure
	rec.QueryCompletedAt = &now
	return s.Captures.Update(rec)
}

// microversionTrail walks the document history backwards from the attempt's
// final microversion to its starting one, stripping usernames before the
// entries are stored.
func (s *CaptureService) microversionTrail(ctx context.Context, token string, job CaptureJob) (json.RawMessage, error) {
	var trail []onshape.DocumentHistoryEntry
	cursor := job.EndMicroversion

	for page := 0; page < maxTrailPages; page++ {
		entries, err := s.Vendor.GetDocumentHistory(ctx, token, job.Domain, job.DocumentID, cursor)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}
		done := false
		for _, e := range entries {
			e.Username = ""
			trail = append(trail, e)
			if e.MicroversionID == job.StartMicroversion {
				done = true
				break
			}
		}
		if done {
			break
		}
		next := entries[len(entries)-1].MicroversionID
		if next == cursor {
			break
		}
		cursor = next
	}
	return json.Marshal(trail)
}

func (s *CaptureService) captureViews(ctx context.Context, token string, job CaptureJob, recID uint, label string) (map[string]string, error) {
	keys := make(map[string]string, len(util.ViewMatrices))
	for name, matrix := range util.ViewMatrices {
		img, err := s.Vendor.GetShadedView(
			ctx, token, job.Domain, string(job.ElementType),
			job.DocumentID, "m", job.EndMicroversion, job.ElementID,
			matrix, captureViewSize, captureViewSize,
		)
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("captures/%d/%s_%s.png", recID, label, name)
		if _, err := s.Storage.UploadBytes(ctx, key, img, "image/png"); err != nil {
			return nil, err
		}
		keys[name] = key
	}
	return keys, nil
}

func (s *CaptureService) captureMesh(ctx context.Context, token string, job CaptureJob, recID uint, label string) (string, error) {
	mesh, err := s.Vendor.GetGLTFMesh(ctx, token, job.Domain, job.DocumentID, job.EndMicroversion, job.ElementID)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("captures/%d/%s_mesh.glb", recID, label)
	if _, err := s.Storage.UploadBytes(ctx, key, mesh, "model/gltf-binary"); err != nil {
		return "", err
	}
	return key, nil
}

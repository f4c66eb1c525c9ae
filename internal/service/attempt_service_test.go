package service

import (
	"cad_practice_backend/internal/model"
	"cad_practice_backend/internal/onshape"
	"cad_practice_backend/internal/util"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

type fakeUserStore struct {
	users map[uint]*model.AuthUser
}

func (f *fakeUserStore) FindByID(id uint) (*model.AuthUser, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

func (f *fakeUserStore) Update(user *model.AuthUser) error {
	f.users[user.ID] = user
	return nil
}

type fakeQuestionStore struct {
	questions map[string]*model.Question
	steps     map[int]*model.QuestionStep
}

func (f *fakeQuestionStore) FindByTypeAndID(t model.QuestionType, id uint) (*model.Question, error) {
	q, ok := f.questions[string(t)]
	if !ok || q.ID != id {
		return nil, errors.New("not found")
	}
	return q, nil
}

func (f *fakeQuestionStore) Update(q *model.Question) error {
	f.questions[string(q.Type)] = q
	return nil
}

func (f *fakeQuestionStore) FindStep(questionID uint, stepNumber int) (*model.QuestionStep, error) {
	s, ok := f.steps[stepNumber]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

type fakeHistoryStore struct {
	completions []model.CompletionRecord
	failures    []model.FailureRecord
}

func (f *fakeHistoryStore) CreateCompletion(rec *model.CompletionRecord) error {
	f.completions = append(f.completions, *rec)
	return nil
}

func (f *fakeHistoryStore) CreateFailure(rec *model.FailureRecord) error {
	f.failures = append(f.failures, *rec)
	return nil
}

func (f *fakeHistoryStore) ListCompletions(userID uint, questionKey string) ([]model.CompletionRecord, error) {
	return f.completions, nil
}

type fakeVendor struct {
	massProps    *onshape.MassProperties
	features     *onshape.FeatureList
	parts        []onshape.Part
	assemblyDef  *onshape.AssemblyDefinition
	microversion string
	derivedID    string

	apiErr        error
	insertedNames []string
	instancesMade bool
	midCalls      int
}

func (f *fakeVendor) GetMassProperties(ctx context.Context, token, domain, etype, did, wvm, wvmid, eid string, massAsGroup bool) (*onshape.MassProperties, error) {
	if f.apiErr != nil {
		return nil, f.apiErr
	}
	return f.massProps, nil
}

func (f *fakeVendor) GetFeatureList(ctx context.Context, token, domain, etype, did, wvm, wvmid, eid string) (*onshape.FeatureList, error) {
	if f.apiErr != nil {
		return nil, f.apiErr
	}
	return f.features, nil
}

func (f *fakeVendor) GetPartList(ctx context.Context, token, domain, did, wvm, wvmid, eid string) ([]onshape.Part, error) {
	return f.parts, nil
}

func (f *fakeVendor) GetAssemblyDefinition(ctx context.Context, token, domain, did, wvm, wvmid, eid string, includeMateFeatures bool) (*onshape.AssemblyDefinition, error) {
	if f.apiErr != nil {
		return nil, f.apiErr
	}
	return f.assemblyDef, nil
}

func (f *fakeVendor) GetCurrentMicroversion(ctx context.Context, token, domain, did, wid string) (string, error) {
	f.midCalls++
	return f.microversion, nil
}

func (f *fakeVendor) InsertDerivedFeature(ctx context.Context, token, domain, did, wid, eid, srcDID, srcVID, srcEID, srcMID, featureName string) (string, error) {
	f.insertedNames = append(f.insertedNames, featureName)
	return f.derivedID, nil
}

func (f *fakeVendor) CreateAssemblyInstances(ctx context.Context, token, domain, did, wid, eid, srcDID, srcVID, srcEID string) error {
	f.instancesMade = true
	return nil
}

type fakeRefresher struct{}

func (fakeRefresher) EnsureFreshToken(ctx context.Context, user *model.AuthUser, within time.Duration) error {
	return nil
}

type fakeCollector struct {
	collect      bool
	consulted    int
	durations    []float64
	failCaptures int
	finalJobs    []bool // isFailure flags
	stepJobs     []bool // finalStep flags
}

func (f *fakeCollector) ShouldCollect(user *model.AuthUser, q *model.Question) bool {
	f.consulted++
	return f.collect
}

func (f *fakeCollector) ShouldCollectCompletion(user *model.AuthUser, q *model.Question, duration float64) bool {
	f.consulted++
	f.durations = append(f.durations, duration)
	return f.collect
}

func (f *fakeCollector) EnqueueFailureCapture(ctx context.Context, user *model.AuthUser, q *model.Question) {
	f.failCaptures++
}

func (f *fakeCollector) EnqueueFinalCapture(ctx context.Context, user *model.AuthUser, q *model.Question, isFailure bool) {
	f.finalJobs = append(f.finalJobs, isFailure)
}

func (f *fakeCollector) EnqueueStepCapture(ctx context.Context, user *model.AuthUser, q *model.Question, finalStep bool) {
	f.stepJobs = append(f.stepJobs, finalStep)
}

func singlePartQuestion() *model.Question {
	q := &model.Question{
		Type:            model.QuestionTypeSinglePart,
		DocumentID:      "qdoc",
		VersionID:       "qver",
		ElementID:       "qelem",
		ElementType:     model.ElementTypePartStudio,
		AllowedElemType: model.ElementTypePartStudio,
		Name:            "Bracket",
		IsPublished:     true,
		IsCollectingData: true,
		RefMass:         f64(1.0),
		RefVolume:       f64(2.0),
		RefArea:         f64(3.0),
		RefInertia:      []float64{4.0, 5.0, 6.0},
	}
	q.ID = 7
	return q
}

func modellingUser(qtype model.QuestionType, qid uint) *model.AuthUser {
	start := time.Now().Add(-90 * time.Second)
	u := &model.AuthUser{
		OSUserID:         "os-user",
		DocumentID:       "udoc",
		WorkspaceID:      "uws",
		ElementID:        "uelem",
		ElementType:      model.ElementTypePartStudio,
		IsModelling:      true,
		LastStart:        &start,
		CurrQuestionType: qtype,
		CurrQuestionID:   qid,
		CurrStep:         1,
	}
	u.ID = 1
	return u
}

func groupedMassProps(mass, volume, area, inertia float64) *onshape.MassProperties {
	return &onshape.MassProperties{
		Bodies: map[string]onshape.BodyProperties{
			onshape.AllBodiesKey: {
				Mass:             []float64{mass},
				Volume:           []float64{volume},
				Periphery:        []float64{area},
				PrincipalInertia: []float64{inertia},
				HasMass:          true,
			},
		},
	}
}

func newTestService(users *fakeUserStore, questions *fakeQuestionStore, history *fakeHistoryStore, vendor *fakeVendor, collector *fakeCollector) *AttemptService {
	return NewAttemptService(users, questions, history, vendor, fakeRefresher{}, collector)
}

func TestEvaluatePassRecordsCompletion(t *testing.T) {
	q := singlePartQuestion()
	user := modellingUser(model.QuestionTypeSinglePart, q.ID)
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{questions: map[string]*model.Question{"SPPS": q}}
	history := &fakeHistoryStore{}
	vendor := &fakeVendor{
		massProps:    groupedMassProps(1.0, 2.0, 3.0, 4.0),
		features:     &onshape.FeatureList{Features: []onshape.Feature{{FeatureID: "f1"}, {FeatureID: "f2"}}},
		microversion: "mid-final",
	}
	collector := &fakeCollector{collect: true}
	svc := newTestService(users, questions, history, vendor, collector)

	res, err := svc.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.True(t, res.Completed)

	assert.Equal(t, uint(1), q.CompletionCount)
	require.Len(t, q.CompletionTimes, 1)
	assert.InDelta(t, 90, q.CompletionTimes[0], 5)
	assert.Equal(t, []int{2}, q.CompletionFeatureCounts)

	assert.False(t, user.IsModelling)
	assert.Equal(t, "mid-final", user.EndMicroversion)

	require.Len(t, history.completions, 1)
	assert.Equal(t, "SPPS_7", history.completions[0].QuestionKey)
	assert.Equal(t, 2, history.completions[0].FeatureCount)

	require.Len(t, collector.finalJobs, 1)
	assert.False(t, collector.finalJobs[0])
}

func TestEvaluateImprovedRepeatCompletionCollects(t *testing.T) {
	q := singlePartQuestion()
	user := modellingUser(model.QuestionTypeSinglePart, q.ID)
	start := time.Now().Add(-50 * time.Second)
	user.LastStart = &start
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{questions: map[string]*model.Question{"SPPS": q}}
	history := &fakeHistoryStore{completions: completionsWithDurations(100, 95, 90, 85)}
	vendor := &fakeVendor{
		massProps:    groupedMassProps(1.0, 2.0, 3.0, 4.0),
		features:     &onshape.FeatureList{Features: []onshape.Feature{{FeatureID: "f1"}}},
		microversion: "mid-best",
	}
	queue := &fakeQueue{}
	svc := NewAttemptService(users, questions, history, vendor, fakeRefresher{}, NewCollectorService(history, queue))

	res, err := svc.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, res.Completed)

	// ~50s beats the prior best of 85s by more than 20%, so the pass must
	// be captured even though the history row is written after the
	// decision.
	assert.Equal(t, []string{JobFinalCapture}, queue.kinds)
}

func TestEvaluateUnimprovedRepeatCompletionSkipsCapture(t *testing.T) {
	q := singlePartQuestion()
	user := modellingUser(model.QuestionTypeSinglePart, q.ID)
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{questions: map[string]*model.Question{"SPPS": q}}
	history := &fakeHistoryStore{completions: completionsWithDurations(100, 95, 90, 85)}
	vendor := &fakeVendor{
		massProps:    groupedMassProps(1.0, 2.0, 3.0, 4.0),
		features:     &onshape.FeatureList{Features: []onshape.Feature{{FeatureID: "f1"}}},
		microversion: "mid-repeat",
	}
	queue := &fakeQueue{}
	svc := NewAttemptService(users, questions, history, vendor, fakeRefresher{}, NewCollectorService(history, queue))

	res, err := svc.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, res.Completed)

	// ~90s does not beat 85*0.8=68s; the completion is recorded but not
	// captured.
	assert.Empty(t, queue.kinds)
	assert.Len(t, history.completions, 5)
}

func TestEvaluateReviewerPassCountsSeparately(t *testing.T) {
	q := singlePartQuestion()
	user := modellingUser(model.QuestionTypeSinglePart, q.ID)
	user.IsReviewer = true
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{questions: map[string]*model.Question{"SPPS": q}}
	vendor := &fakeVendor{
		massProps:    groupedMassProps(1.0, 2.0, 3.0, 4.0),
		features:     &onshape.FeatureList{},
		microversion: "m",
	}
	svc := newTestService(users, questions, &fakeHistoryStore{}, vendor, &fakeCollector{})

	_, err := svc.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint(1), q.ReviewerCompletionCount)
}

func TestEvaluateFirstFailureSetsMarker(t *testing.T) {
	q := singlePartQuestion()
	user := modellingUser(model.QuestionTypeSinglePart, q.ID)
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{questions: map[string]*model.Question{"SPPS": q}}
	vendor := &fakeVendor{
		massProps:    groupedMassProps(1.2, 2.0, 3.0, 4.0), // mass out of tolerance
		features:     &onshape.FeatureList{Features: []onshape.Feature{{FeatureID: "f1"}}},
		microversion: "mid-fail",
	}
	collector := &fakeCollector{collect: true}
	svc := newTestService(users, questions, &fakeHistoryStore{}, vendor, collector)

	res, err := svc.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.True(t, res.FirstFailure)
	require.NotNil(t, res.Mismatch)
	assert.Equal(t, "mid-fail", user.EndMicroversion)
	assert.True(t, user.IsModelling)
	assert.Equal(t, 1, collector.failCaptures)

	// A repeat failure reports but changes nothing.
	vendor.microversion = "mid-later"
	res, err = svc.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, res.FirstFailure)
	assert.Equal(t, "mid-fail", user.EndMicroversion)
	assert.Equal(t, 1, collector.failCaptures)
}

func TestEvaluatePreconditionsDoNotSetMarker(t *testing.T) {
	cases := []struct {
		name    string
		vendor  *fakeVendor
		message string
	}{
		{
			name: "zero bodies",
			vendor: &fakeVendor{
				massProps: &onshape.MassProperties{Bodies: map[string]onshape.BodyProperties{}},
				features:  &onshape.FeatureList{},
			},
			message: msgNoParts,
		},
		{
			name: "derived import",
			vendor: &fakeVendor{
				massProps: groupedMassProps(1, 2, 3, 4),
				features: &onshape.FeatureList{Features: []onshape.Feature{
					{FeatureID: "d1", FeatureType: "importDerived"},
				}},
			},
			message: msgDerivedImport,
		},
		{
			name: "missing material",
			vendor: func() *fakeVendor {
				props := groupedMassProps(1, 2, 3, 4)
				body := props.Bodies[onshape.AllBodiesKey]
				body.HasMass = false
				props.Bodies[onshape.AllBodiesKey] = body
				return &fakeVendor{massProps: props, features: &onshape.FeatureList{}}
			}(),
			message: msgNoMaterial,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := singlePartQuestion()
			user := modellingUser(model.QuestionTypeSinglePart, q.ID)
			users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
			questions := &fakeQuestionStore{questions: map[string]*model.Question{"SPPS": q}}
			collector := &fakeCollector{collect: true}
			svc := newTestService(users, questions, &fakeHistoryStore{}, tc.vendor, collector)

			res, err := svc.Evaluate(context.Background(), 1)
			require.NoError(t, err)
			assert.False(t, res.Passed)
			assert.False(t, res.FirstFailure)
			assert.Equal(t, tc.message, res.Message)
			assert.Empty(t, user.EndMicroversion)
			assert.Zero(t, collector.failCaptures)
		})
	}
}

func multiPartQuestion() *model.Question {
	q := &model.Question{
		Type:             model.QuestionTypeMultiPart,
		ElementType:      model.ElementTypePartStudio,
		AllowedElemType:  model.ElementTypePartStudio,
		Name:             "Gearbox Parts",
		IsPublished:      true,
		IsCollectingData: true,
		IsMultiPart:      true,
		RefMasses:        []float64{1, 2},
		RefVolumes:       []float64{1, 2},
		RefAreas:         []float64{1, 2},
		RefInertias:      [][]float64{{1}, {2}},
		RefPartNames:     []string{"A", "B"},
	}
	q.ID = 9
	return q
}

func TestEvaluatePartCountMismatchIsFirstFailure(t *testing.T) {
	q := multiPartQuestion()
	user := modellingUser(model.QuestionTypeMultiPart, q.ID)
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{questions: map[string]*model.Question{"MPPS": q}}
	vendor := &fakeVendor{
		massProps: &onshape.MassProperties{Bodies: map[string]onshape.BodyProperties{
			"p1": {Mass: []float64{1}, Volume: []float64{1}, Periphery: []float64{1}, PrincipalInertia: []float64{1}, HasMass: true},
		}},
		features:     &onshape.FeatureList{},
		microversion: "mid-count",
	}
	collector := &fakeCollector{collect: true}
	svc := newTestService(users, questions, &fakeHistoryStore{}, vendor, collector)

	res, err := svc.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.True(t, res.FirstFailure)
	assert.Equal(t, msgPartCountWrong, res.Message)
	assert.Equal(t, "mid-count", user.EndMicroversion)
	assert.Equal(t, 1, collector.failCaptures)
}

func TestEvaluateApiErrorSurfaces(t *testing.T) {
	q := singlePartQuestion()
	user := modellingUser(model.QuestionTypeSinglePart, q.ID)
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{questions: map[string]*model.Question{"SPPS": q}}
	vendor := &fakeVendor{apiErr: errors.New("boom")}
	svc := newTestService(users, questions, &fakeHistoryStore{}, vendor, &fakeCollector{})

	_, err := svc.Evaluate(context.Background(), 1)
	assert.ErrorIs(t, err, util.ErrApiUnavailable)
	assert.Empty(t, user.EndMicroversion)
}

func TestEvaluateWithoutActiveAttempt(t *testing.T) {
	user := modellingUser(model.QuestionTypeSinglePart, 7)
	user.IsModelling = false
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	svc := newTestService(users, &fakeQuestionStore{}, &fakeHistoryStore{}, &fakeVendor{}, &fakeCollector{})

	_, err := svc.Evaluate(context.Background(), 1)
	assert.ErrorIs(t, err, util.ErrNoActiveAttempt)
}

func multiStepQuestion() *model.Question {
	q := &model.Question{
		Type:             model.QuestionTypeMultiStep,
		ElementType:      model.ElementTypePartStudio,
		AllowedElemType:  model.ElementTypePartStudio,
		Name:             "Staged Bracket",
		IsPublished:      true,
		IsCollectingData: true,
		TotalSteps:       2,
	}
	q.ID = 3
	return q
}

func stepWithGeometry(n int) *model.QuestionStep {
	return &model.QuestionStep{
		QuestionID: 3,
		StepNumber: n,
		RefMass:    f64(1.0),
		RefVolume:  f64(2.0),
		RefArea:    f64(3.0),
		RefInertia: []float64{4.0},
	}
}

func TestMultiStepAdvancesAndCompletes(t *testing.T) {
	q := multiStepQuestion()
	user := modellingUser(model.QuestionTypeMultiStep, q.ID)
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{
		questions: map[string]*model.Question{"MSPS": q},
		steps:     map[int]*model.QuestionStep{1: stepWithGeometry(1), 2: stepWithGeometry(2)},
	}
	history := &fakeHistoryStore{}
	vendor := &fakeVendor{
		massProps:    groupedMassProps(1.0, 2.0, 3.0, 4.0),
		features:     &onshape.FeatureList{Features: []onshape.Feature{{FeatureID: "f"}}},
		microversion: "mid-step1",
	}
	collector := &fakeCollector{collect: true}
	svc := newTestService(users, questions, history, vendor, collector)

	res, err := svc.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.False(t, res.Completed)
	assert.Equal(t, 2, res.CurrentStep)
	assert.True(t, user.IsModelling)
	assert.Equal(t, "mid-step1", user.EndMicroversion)
	require.Equal(t, []bool{false}, collector.stepJobs)

	vendor.microversion = "mid-step2"
	res, err = svc.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.False(t, user.IsModelling)
	assert.Equal(t, uint(1), q.CompletionCount)
	require.Len(t, history.completions, 1)

	// Step captures are unconditional and the sampling policy is never
	// consulted for multi-step questions.
	assert.Equal(t, []bool{false, true}, collector.stepJobs)
	assert.Zero(t, collector.consulted)
	assert.Empty(t, collector.finalJobs)
}

func assemblyQuestion() *model.Question {
	q := &model.Question{
		Type:             model.QuestionTypeAssembly,
		ElementType:      model.ElementTypeAssembly,
		AllowedElemType:  model.ElementTypeAssembly,
		Name:             "Clamp Assembly",
		IsPublished:      true,
		IsCollectingData: true,
		RefInertia:       []float64{10.0, 11.0, 12.0},
	}
	q.ID = 5
	return q
}

func assemblyDef(instanceIDs []string, mates int) *onshape.AssemblyDefinition {
	def := &onshape.AssemblyDefinition{}
	for _, id := range instanceIDs {
		def.RootAssembly.Instances = append(def.RootAssembly.Instances, onshape.AssemblyInstance{ID: id})
	}
	for i := 0; i < mates; i++ {
		def.RootAssembly.Features = append(def.RootAssembly.Features, json.RawMessage(`{}`))
	}
	return def
}

func TestAssemblyEvaluate(t *testing.T) {
	q := assemblyQuestion()
	user := modellingUser(model.QuestionTypeAssembly, q.ID)
	user.ElementType = model.ElementTypeAssembly
	user.InitContext.AssemblyInstanceIDs = []string{"i1", "i2"}
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{questions: map[string]*model.Question{"ASMB": q}}
	vendor := &fakeVendor{
		assemblyDef:  assemblyDef([]string{"i1", "i2"}, 3),
		massProps:    &onshape.MassProperties{PrincipalInertia: []float64{10.0000005, 11, 12}},
		microversion: "mid-asm",
	}
	svc := newTestService(users, questions, &fakeHistoryStore{}, vendor, &fakeCollector{collect: true})

	res, err := svc.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, []int{3}, q.CompletionFeatureCounts)
}

func TestAssemblyRejectsMissingInstances(t *testing.T) {
	q := assemblyQuestion()
	user := modellingUser(model.QuestionTypeAssembly, q.ID)
	user.ElementType = model.ElementTypeAssembly
	user.InitContext.AssemblyInstanceIDs = []string{"i1", "i2"}
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{questions: map[string]*model.Question{"ASMB": q}}
	vendor := &fakeVendor{
		assemblyDef: assemblyDef([]string{"i1"}, 2),
		massProps:   &onshape.MassProperties{PrincipalInertia: []float64{10, 11, 12}},
	}
	svc := newTestService(users, questions, &fakeHistoryStore{}, vendor, &fakeCollector{})

	res, err := svc.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, msgInstanceGone, res.Message)
	assert.Empty(t, user.EndMicroversion)
}

func TestGiveUpWithoutFailureRecordsNothing(t *testing.T) {
	q := singlePartQuestion()
	user := modellingUser(model.QuestionTypeSinglePart, q.ID)
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{questions: map[string]*model.Question{"SPPS": q}}
	history := &fakeHistoryStore{}
	vendor := &fakeVendor{microversion: "mid-x", derivedID: "dfid"}
	collector := &fakeCollector{collect: true}
	svc := newTestService(users, questions, history, vendor, collector)

	res, err := svc.GiveUp(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, msgSolutionImported, res.Message)
	assert.False(t, res.DidCollect)
	assert.Empty(t, history.failures)
	assert.False(t, user.IsModelling)
	assert.Empty(t, collector.finalJobs)
}

func TestGiveUpAfterFailureCollects(t *testing.T) {
	q := singlePartQuestion()
	user := modellingUser(model.QuestionTypeSinglePart, q.ID)
	user.EndMicroversion = "mid-first-fail"
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{questions: map[string]*model.Question{"SPPS": q}}
	history := &fakeHistoryStore{}
	vendor := &fakeVendor{microversion: "mid-giveup", derivedID: "dfid"}
	collector := &fakeCollector{collect: true}
	svc := newTestService(users, questions, history, vendor, collector)

	res, err := svc.GiveUp(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.DidCollect)
	require.Len(t, history.failures, 1)
	assert.Equal(t, "SPPS_7", history.failures[0].QuestionKey)
	assert.Equal(t, "mid-giveup", user.EndMicroversion)
	require.Equal(t, []bool{true}, collector.finalJobs)
	assert.Equal(t, []string{"Derived Reference Part"}, vendor.insertedNames)
}

func TestSummarizeLatestAndBest(t *testing.T) {
	q := singlePartQuestion()
	q.CompletionTimes = []float64{100, 60, 80}
	q.CompletionFeatureCounts = []int{9, 5, 7}
	user := modellingUser(model.QuestionTypeSinglePart, q.ID)
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{questions: map[string]*model.Question{"SPPS": q}}
	history := &fakeHistoryStore{completions: []model.CompletionRecord{
		{Duration: 100, FeatureCount: 9},
		{Duration: 60, FeatureCount: 5},
		{Duration: 80, FeatureCount: 7},
	}}
	svc := newTestService(users, questions, history, &fakeVendor{}, &fakeCollector{})

	latest, err := svc.Summarize(1, false)
	require.NoError(t, err)
	assert.Equal(t, 80.0, latest.Duration)
	assert.Equal(t, 7, latest.FeatureCount)
	assert.Equal(t, []int{9, 5, 7}, latest.FeatureCounts)

	best, err := svc.Summarize(1, true)
	require.NoError(t, err)
	assert.Equal(t, 60.0, best.Duration)
	assert.Equal(t, 5, best.FeatureCount)
}

func TestInitiateStartsAttempt(t *testing.T) {
	q := multiPartQuestion()
	q.StartingEID = "starter"
	q.InitMicroversion = "init-mid"
	user := modellingUser(model.QuestionTypeSinglePart, 1)
	user.IsModelling = false
	user.InitContext = model.InitContext{DerivedFeatureID: "stale"}
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{questions: map[string]*model.Question{"MPPS": q}}
	vendor := &fakeVendor{
		features:     &onshape.FeatureList{},
		microversion: "mid-start",
		derivedID:    "derived-1",
	}
	svc := newTestService(users, questions, &fakeHistoryStore{}, vendor, &fakeCollector{})

	got, err := svc.Initiate(context.Background(), 1, model.QuestionTypeMultiPart, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.Name, got.Name)

	assert.True(t, user.IsModelling)
	assert.NotNil(t, user.LastStart)
	assert.Equal(t, model.QuestionTypeMultiPart, user.CurrQuestionType)
	assert.Equal(t, uint(1), user.CurrStep)
	assert.Equal(t, "mid-start", user.StartMicroversion)
	assert.Empty(t, user.EndMicroversion)
	assert.Equal(t, "derived-1", user.InitContext.DerivedFeatureID)
	assert.Equal(t, []string{"Derived Starting Parts"}, vendor.insertedNames)
}

func TestInitiateRejectsNonEmptyWorkspace(t *testing.T) {
	q := singlePartQuestion()
	user := modellingUser(model.QuestionTypeSinglePart, q.ID)
	user.IsModelling = false
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{questions: map[string]*model.Question{"SPPS": q}}
	vendor := &fakeVendor{features: &onshape.FeatureList{Features: []onshape.Feature{{FeatureID: "f"}}}}
	svc := newTestService(users, questions, &fakeHistoryStore{}, vendor, &fakeCollector{})

	_, err := svc.Initiate(context.Background(), 1, model.QuestionTypeSinglePart, q.ID)
	assert.ErrorIs(t, err, util.ErrWorkspaceNotEmpty)
}

func TestInitiateGuards(t *testing.T) {
	q := singlePartQuestion()
	q.IsPublished = false
	user := modellingUser(model.QuestionTypeSinglePart, q.ID)
	user.IsModelling = false
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{questions: map[string]*model.Question{"SPPS": q}}
	vendor := &fakeVendor{features: &onshape.FeatureList{}, microversion: "m"}
	svc := newTestService(users, questions, &fakeHistoryStore{}, vendor, &fakeCollector{})

	_, err := svc.Initiate(context.Background(), 1, model.QuestionTypeSinglePart, q.ID)
	assert.ErrorIs(t, err, util.ErrQuestionNotPublished)

	// Reviewers may attempt unpublished questions.
	user.IsReviewer = true
	_, err = svc.Initiate(context.Background(), 1, model.QuestionTypeSinglePart, q.ID)
	require.NoError(t, err)

	user.IsModelling = false
	user.ElementType = model.ElementTypeAssembly
	_, err = svc.Initiate(context.Background(), 1, model.QuestionTypeSinglePart, q.ID)
	assert.ErrorIs(t, err, util.ErrElementTypeMismatch)
}

func TestInitiateAssemblyCachesInstances(t *testing.T) {
	q := assemblyQuestion()
	user := modellingUser(model.QuestionTypeAssembly, q.ID)
	user.IsModelling = false
	user.ElementType = model.ElementTypeAssembly
	users := &fakeUserStore{users: map[uint]*model.AuthUser{1: user}}
	questions := &fakeQuestionStore{questions: map[string]*model.Question{"ASMB": q}}
	emptyThenPopulated := &fakeVendor{
		assemblyDef:  assemblyDef(nil, 0),
		microversion: "mid-a",
	}
	svc := newTestService(users, questions, &fakeHistoryStore{}, emptyThenPopulated, &fakeCollector{})

	// Workspace check sees the empty definition; after instance creation
	// the same definition is re-read for caching.
	emptyThenPopulated.assemblyDef = assemblyDef(nil, 0)
	_, err := svc.Initiate(context.Background(), 1, model.QuestionTypeAssembly, q.ID)
	require.NoError(t, err)
	assert.True(t, emptyThenPopulated.instancesMade)
}

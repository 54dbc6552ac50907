package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/voicedrop-backend/internal/errors"
	"github.com/unclebandit/voicedrop-backend/internal/logger"
	"github.com/unclebandit/voicedrop-backend/internal/metrics"
	"github.com/unclebandit/voicedrop-backend/internal/model"
	"github.com/unclebandit/voicedrop-backend/internal/phone"
	"github.com/unclebandit/voicedrop-backend/internal/provider"
	"github.com/unclebandit/voicedrop-backend/internal/queue"
	"github.com/unclebandit/voicedrop-backend/internal/repository"
	"github.com/unclebandit/voicedrop-backend/internal/throttle"
)

// VoicemailProvider is the part of provider.Client the dispatcher uses.
type VoicemailProvider interface {
	CheckConfigured() error
	UploadMedia(ctx context.Context, sourceURL, filename string) (provider.MediaRef, error)
	DispatchMessage(ctx context.Context, r provider.DispatchRequest) (provider.MessageID, error)
}

// Repositories groups the storage the services need.
type Repositories struct {
	Campaigns  repository.CampaignRepositoryInterface
	Users      repository.UserRepositoryInterface
	Scripts    repository.ScriptRepositoryInterface
	Contacts   repository.ContactRepositoryInterface
	Executions repository.ExecutionRepositoryInterface
	Attempts   repository.AttemptRepositoryInterface
}

// DispatchCommand asks for a campaign to be sent now. SendNow and
// ScheduledDate are accepted for compatibility; dispatch is always immediate.
type DispatchCommand struct {
	CampaignID    string
	OwnerID       string
	SendNow       bool
	ScheduledDate string
}

type RecipientResult struct {
	ScriptID  string              `json:"scriptId"`
	ContactID string              `json:"contactId"`
	Phone     string              `json:"phone"`
	Status    model.AttemptStatus `json:"status"`
	DropID    string              `json:"dropId,omitempty"`
	Error     string              `json:"error,omitempty"`

	kind appErrors.RecipientErrorKind
}

// Outcome is the tally of one run, results in resolver order.
type Outcome struct {
	Results      []RecipientResult
	SuccessCount int
	FailureCount int
}

type DispatchReport struct {
	Success       bool               `json:"success"`
	CampaignID    string             `json:"campaignId"`
	CampaignName  string             `json:"campaignName"`
	ExecutionID   string             `json:"executionId"`
	Mode          model.DeliveryMode `json:"mode"`
	TotalScripts  int                `json:"totalScripts"`
	TotalContacts int                `json:"totalContacts,omitempty"`
	SuccessCount  int                `json:"successCount"`
	FailureCount  int                `json:"failureCount"`
	Results       []RecipientResult  `json:"results"`
}

// ExecutionEvent is published after every completed run.
type ExecutionEvent struct {
	ExecutionID  string `json:"execution_id"`
	CampaignID   string `json:"campaign_id"`
	Strategy     string `json:"strategy"`
	SuccessCount int    `json:"success_count"`
	FailureCount int    `json:"failure_count"`
	Total        int    `json:"total"`
}

type DispatchService struct {
	repos       Repositories
	provider    VoicemailProvider
	runner      *throttle.Runner
	resolver    *Resolver
	state       *StateUpdater
	recorder    *Recorder
	events      queue.Publisher
	eventsTopic string
	log         logger.Logger
	heartbeat   time.Duration

	now   func() time.Time
	newID func() string
}

type DispatchOption func(*DispatchService)

// WithExecutionEvents publishes an ExecutionEvent to topic after each run.
func WithExecutionEvents(p queue.Publisher, topic string) DispatchOption {
	return func(s *DispatchService) {
		s.events = p
		s.eventsTopic = topic
	}
}

func WithClock(now func() time.Time) DispatchOption {
	return func(s *DispatchService) { s.now = now }
}

// WithHeartbeat sets how often a running dispatch refreshes its guard. It
// must stay well under the sweeper's guard TTL.
func WithHeartbeat(every time.Duration) DispatchOption {
	return func(s *DispatchService) {
		if every > 0 {
			s.heartbeat = every
		}
	}
}

func NewDispatchService(repos Repositories, p VoicemailProvider, runner *throttle.Runner, log logger.Logger, opts ...DispatchOption) *DispatchService {
	s := &DispatchService{
		repos:     repos,
		provider:  p,
		runner:    runner,
		resolver:  NewResolver(repos.Scripts, repos.Contacts),
		state:     NewStateUpdater(repos.Campaigns, repos.Scripts),
		recorder:  NewRecorder(repos.Executions),
		log:       log,
		heartbeat: time.Minute,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run carries what every item of one dispatch needs.
type run struct {
	executionID string
	token       int
	campaign    *model.Campaign
	plan        *WorkPlan
	forwarding  string
	log         logger.Logger
}

// DispatchCampaign checks the preconditions, takes the campaign's dispatch
// guard and delivers every work item. Precondition failures return an error
// and touch nothing. Once the loop has started the caller always gets a full
// report; post-run persistence failures are logged, and ExecutionID is empty
// when the execution record could not be written.
func (s *DispatchService) DispatchCampaign(ctx context.Context, cmd DispatchCommand) (*DispatchReport, error) {
	log := s.log.WithFields(map[string]interface{}{
		"campaign_id": cmd.CampaignID,
		"owner_id":    cmd.OwnerID,
	})
	if !cmd.SendNow || cmd.ScheduledDate != "" {
		log.Info("scheduling options ignored, dispatching immediately", map[string]interface{}{
			"send_now":       cmd.SendNow,
			"scheduled_date": cmd.ScheduledDate,
		})
	}

	campaign, plan, forwarding, err := s.preconditions(ctx, cmd)
	if err != nil {
		metrics.DispatchRuns.WithLabelValues("none", "rejected").Inc()
		log.Warn("dispatch rejected", map[string]interface{}{"error": err})
		return nil, err
	}

	token, err := s.repos.Campaigns.BeginDispatch(ctx, campaign.ID, campaign.Version)
	if err != nil {
		metrics.DispatchRuns.WithLabelValues(string(plan.Mode), "rejected").Inc()
		log.Warn("dispatch guard not acquired", map[string]interface{}{"error": err})
		return nil, err
	}

	r := &run{
		executionID: s.newID(),
		token:       token,
		campaign:    campaign,
		plan:        plan,
		forwarding:  forwarding,
		log:         log.WithFields(map[string]interface{}{"mode": string(plan.Mode)}),
	}
	r.log.Info("dispatch started", map[string]interface{}{
		"execution_id": r.executionID,
		"work_items":   len(plan.Items),
	})

	// A disconnected caller must not truncate the batch.
	loopCtx := context.WithoutCancel(ctx)
	outcome := s.execute(loopCtx, r)

	report := &DispatchReport{
		Success:       true,
		CampaignID:    campaign.ID,
		CampaignName:  campaign.Name,
		Mode:          plan.Mode,
		TotalScripts:  plan.TotalScripts(),
		TotalContacts: plan.TotalContacts(),
		SuccessCount:  outcome.SuccessCount,
		FailureCount:  outcome.FailureCount,
		Results:       outcome.Results,
	}

	rec, err := s.recorder.Record(loopCtx, r.executionID, campaign, plan, outcome)
	if err != nil {
		r.log.Error("failed to record execution", map[string]interface{}{"error": err})
	} else {
		report.ExecutionID = rec.ID
		s.publish(loopCtx, r, rec)
	}

	metrics.DispatchRuns.WithLabelValues(string(plan.Mode), "completed").Inc()
	r.log.Info("dispatch finished", map[string]interface{}{
		"execution_id":  report.ExecutionID,
		"success_count": outcome.SuccessCount,
		"failure_count": outcome.FailureCount,
	})
	return report, nil
}

func (s *DispatchService) preconditions(ctx context.Context, cmd DispatchCommand) (*model.Campaign, *WorkPlan, string, error) {
	if err := s.provider.CheckConfigured(); err != nil {
		return nil, nil, "", err
	}

	campaign, err := s.repos.Campaigns.GetByIDForOwner(ctx, cmd.CampaignID, cmd.OwnerID)
	if err != nil {
		return nil, nil, "", err
	}

	raw, err := s.repos.Users.GetForwardingNumber(ctx, cmd.OwnerID)
	if err != nil {
		return nil, nil, "", err
	}
	if raw == "" {
		return nil, nil, "", appErrors.NewMissingForwardingNumber()
	}

	plan, err := s.resolver.Resolve(ctx, campaign)
	if err != nil {
		return nil, nil, "", err
	}
	return campaign, plan, phone.Normalize(raw), nil
}

// execute runs the loop while holding the guard and releases it afterwards,
// including when something below panics. A heartbeat keeps the guard fresh
// for the sweeper; if the guard is lost no further item is started.
func (s *DispatchService) execute(ctx context.Context, r *run) *Outcome {
	metrics.ActiveDispatches.Inc()
	sched, stop := context.WithCancelCause(ctx)
	beating := s.keepAlive(sched, r, stop)

	released := false
	defer func() {
		stop(nil)
		<-beating
		metrics.ActiveDispatches.Dec()
		if released {
			return
		}
		if _, err := s.repos.Campaigns.FinishDispatch(ctx, r.campaign.ID, r.token, nil, false); err != nil {
			r.log.Error("failed to release dispatch guard", map[string]interface{}{"error": err})
		}
	}()

	outcome := s.deliverAll(ctx, sched, r)

	stop(nil)
	<-beating
	released = true
	if err := s.state.Apply(ctx, r.campaign, r.token, r.plan, outcome); err != nil {
		if errors.Is(err, errGuardLost) {
			r.log.Error("dispatch guard was lost before the run finished, campaign state left to its holder", map[string]interface{}{"error": err})
		} else {
			r.log.Error("failed to update campaign state", map[string]interface{}{"error": err})
		}
	}
	return outcome
}

// keepAlive touches the guard every heartbeat until ctx ends. When the
// guard no longer belongs to this run it cancels the schedule with
// errGuardLost. The returned channel closes when the loop has exited.
func (s *DispatchService) keepAlive(ctx context.Context, r *run, lost context.CancelCauseFunc) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			held, err := s.repos.Campaigns.TouchDispatch(ctx, r.campaign.ID, r.token)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				r.log.Warn("dispatch heartbeat failed", map[string]interface{}{"error": err})
			case !held:
				r.log.Error("dispatch guard lost, stopping run", map[string]interface{}{"token": r.token})
				lost(errGuardLost)
				return
			}
		}
	}()
	return done
}

// deliverAll starts items on sched and runs each of them on ctx, so an item
// in flight always completes once started.
func (s *DispatchService) deliverAll(ctx, sched context.Context, r *run) *Outcome {
	items := r.plan.Items
	results := make([]RecipientResult, len(items))
	started := make([]bool, len(items))

	err := s.runner.Run(sched, len(items), func(_ context.Context, i int) {
		started[i] = true
		results[i] = s.deliverOne(ctx, r, items[i])
		s.persist(ctx, r, items[i], results[i])
	})
	if err != nil {
		if cause := context.Cause(sched); cause != nil {
			err = fmt.Errorf("%w: %w", cause, err)
		}
		r.log.Error("dispatch loop stopped early", map[string]interface{}{"error": err})
		for i := range items {
			if started[i] {
				continue
			}
			// Never attempted: the script stays not_sent for the next run.
			results[i] = failed(baseResult(items[i]), appErrors.KindUnexpectedException, err)
			s.recordAttempt(ctx, r, results[i])
		}
	}

	outcome := &Outcome{Results: results}
	for _, res := range results {
		if res.Status == model.AttemptSuccess {
			outcome.SuccessCount++
		} else {
			outcome.FailureCount++
		}
	}
	return outcome
}

// deliverOne is the per-item primitive shared by both modes. It never
// returns without an outcome for the item.
func (s *DispatchService) deliverOne(ctx context.Context, r *run, item WorkItem) (res RecipientResult) {
	res = baseResult(item)
	defer func() {
		if p := recover(); p != nil {
			res = failed(res, appErrors.KindUnexpectedException, fmt.Errorf("panic: %v", p))
		}
	}()

	if item.Err != nil {
		var re *appErrors.RecipientError
		if errors.As(item.Err, &re) {
			return failed(res, re.Kind, re.Err)
		}
		return failed(res, appErrors.KindUnexpectedException, item.Err)
	}

	res.Phone = phone.Normalize(item.Contact.Phone)
	if !phone.Valid(res.Phone) {
		return failed(res, appErrors.KindInvalidPhone, fmt.Errorf("phone %q is not dialable", item.Contact.Phone))
	}

	ref, err := s.provider.UploadMedia(ctx, item.Script.Audio.URL, mediaFilename(item.Script))
	if err != nil {
		return failed(res, appErrors.KindUploadFailure, err)
	}

	id, err := s.provider.DispatchMessage(ctx, provider.DispatchRequest{
		Phone:            res.Phone,
		MediaRef:         ref,
		ForwardingNumber: r.forwarding,
		ForeignRef:       ForeignRef(r.campaign.Name, item.Script.ID, item.ContactID, r.plan.Mode),
	})
	if err != nil {
		return failed(res, appErrors.KindDispatchFailure, err)
	}

	res.Status = model.AttemptSuccess
	res.DropID = string(id)
	return res
}

// persist writes the attempt row and, in personalized mode, the script's
// terminal delivery state. Storage failures are logged; the item's outcome
// stands.
func (s *DispatchService) persist(ctx context.Context, r *run, item WorkItem, res RecipientResult) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic while persisting delivery", map[string]interface{}{"script_id": res.ScriptID, "panic": fmt.Sprint(p)})
		}
	}()

	attempt := s.recordAttempt(ctx, r, res)

	if r.plan.Mode != model.ModePersonalized {
		return
	}

	var (
		moved bool
		err   error
	)
	if res.Status == model.AttemptSuccess {
		moved, err = s.repos.Scripts.MarkSent(ctx, item.Script.ID, res.DropID, attempt.AttemptedAt)
	} else {
		moved, err = s.repos.Scripts.MarkFailed(ctx, item.Script.ID, res.Error)
	}
	switch {
	case err != nil:
		r.log.Error("failed to store script delivery", map[string]interface{}{"script_id": item.Script.ID, "error": err})
	case !moved:
		r.log.Warn("script already left not_sent, delivery state kept", map[string]interface{}{"script_id": item.Script.ID})
	}
}

// recordAttempt counts the outcome and appends it to the attempt log.
func (s *DispatchService) recordAttempt(ctx context.Context, r *run, res RecipientResult) *model.DeliveryAttempt {
	reason := "none"
	if res.kind != "" {
		reason = string(res.kind)
	}
	metrics.RecipientOutcomes.WithLabelValues(string(r.plan.Mode), string(res.Status), reason).Inc()

	fields := map[string]interface{}{"script_id": res.ScriptID, "contact_id": res.ContactID}
	if res.Status == model.AttemptSuccess {
		r.log.Debug("drop sent", fields)
	} else {
		fields["error"] = res.Error
		r.log.Warn("drop failed", fields)
	}

	attempt := &model.DeliveryAttempt{
		ID:                s.newID(),
		ExecutionID:       r.executionID,
		CampaignID:        r.campaign.ID,
		ScriptID:          res.ScriptID,
		ContactID:         res.ContactID,
		Phone:             res.Phone,
		Status:            res.Status,
		ProviderMessageID: res.DropID,
		Error:             res.Error,
		AttemptedAt:       s.now(),
	}
	if err := s.repos.Attempts.Create(ctx, attempt); err != nil {
		r.log.Error("failed to store delivery attempt", map[string]interface{}{"script_id": res.ScriptID, "error": err})
	}
	return attempt
}

func (s *DispatchService) publish(ctx context.Context, r *run, rec *model.ExecutionRecord) {
	if s.events == nil {
		return
	}
	body, err := json.Marshal(ExecutionEvent{
		ExecutionID:  rec.ID,
		CampaignID:   rec.CampaignID,
		Strategy:     rec.Strategy,
		SuccessCount: rec.Results.SuccessCount,
		FailureCount: rec.Results.FailureCount,
		Total:        len(r.plan.Items),
	})
	if err != nil {
		r.log.Error("failed to encode execution event", map[string]interface{}{"error": err})
		return
	}
	if err := s.events.Publish(ctx, s.eventsTopic, body); err != nil {
		r.log.Warn("failed to publish execution event", map[string]interface{}{"error": err})
	}
}

func baseResult(item WorkItem) RecipientResult {
	res := RecipientResult{ScriptID: item.Script.ID, ContactID: item.ContactID, Status: model.AttemptFailed}
	if item.Contact != nil {
		res.Phone = item.Contact.Phone
	}
	return res
}

func failed(res RecipientResult, kind appErrors.RecipientErrorKind, err error) RecipientResult {
	res.Status = model.AttemptFailed
	res.DropID = ""
	res.kind = kind
	res.Error = appErrors.NewRecipientError(kind, err).Error()
	return res
}

// mediaFilename names the upload after the script, keeping the source extension.
func mediaFilename(s *model.Script) string {
	ext := ".mp3"
	if u, err := url.Parse(s.Audio.URL); err == nil {
		if e := path.Ext(u.Path); e != "" {
			ext = e
		}
	}
	return s.ID + ext
}

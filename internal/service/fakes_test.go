package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/voicedrop-backend/internal/errors"
	"github.com/unclebandit/voicedrop-backend/internal/model"
	"github.com/unclebandit/voicedrop-backend/internal/provider"
)

// --- In-memory store shared by the mock repositories ---

type memStore struct {
	mu         sync.Mutex
	campaigns  map[string]*model.Campaign
	forwarding map[string]string
	scripts    []*model.Script
	contacts   map[string]*model.Contact
	members    map[string][]string
	executions []*model.ExecutionRecord
	attempts   []*model.DeliveryAttempt

	executionErr error
	finishCalls  int
	touchCalls   int
	touchMisses  int

	clock time.Time // zero means wall clock
}

func newMemStore() *memStore {
	return &memStore{
		campaigns:  map[string]*model.Campaign{},
		forwarding: map[string]string{},
		contacts:   map[string]*model.Contact{},
		members:    map[string][]string{},
	}
}

func (m *memStore) repos() Repositories {
	return Repositories{
		Campaigns:  &mockCampaignRepo{m},
		Users:      &mockUserRepo{m},
		Scripts:    &mockScriptRepo{m},
		Contacts:   &mockContactRepo{m},
		Executions: &mockExecutionRepo{m},
		Attempts:   &mockAttemptRepo{m},
	}
}

func (m *memStore) addCampaign(id, owner, name string) *model.Campaign {
	c := &model.Campaign{ID: id, OwnerID: owner, Name: name, Status: model.CampaignReview, Version: 1}
	m.campaigns[id] = c
	return c
}

func (m *memStore) addContact(id, owner, phone string) {
	m.contacts[id] = &model.Contact{ID: id, OwnerID: owner, Name: "Contact " + id, Phone: phone}
}

func (m *memStore) addScript(id, campaignID, contactID string, general bool, audio model.AudioStatus, delivery model.DeliveryStatus) *model.Script {
	s := &model.Script{
		ID:         id,
		CampaignID: campaignID,
		ContactID:  contactID,
		IsGeneral:  general,
		Audio:      model.ScriptAudio{Status: audio, URL: "https://audio.example/" + id + ".wav"},
		Delivery:   model.ScriptDelivery{Status: delivery},
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, len(m.scripts), 0, time.UTC),
	}
	m.scripts = append(m.scripts, s)
	return s
}

func (m *memStore) script(id string) *model.Script {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.scripts {
		if s.ID == id {
			cp := *s
			return &cp
		}
	}
	return nil
}

func (m *memStore) now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nowLocked()
}

func (m *memStore) nowLocked() time.Time {
	if m.clock.IsZero() {
		return time.Now()
	}
	return m.clock
}

// advance moves the store clock forward, starting from the wall clock.
func (m *memStore) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.nowLocked().Add(d)
}

func (m *memStore) touches() (calls, misses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touchCalls, m.touchMisses
}

func (m *memStore) campaign(id string) model.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.campaigns[id]
}

type mockCampaignRepo struct{ st *memStore }

func (r *mockCampaignRepo) GetByIDForOwner(ctx context.Context, id, ownerID string) (*model.Campaign, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c, ok := r.st.campaigns[id]
	if !ok || c.OwnerID != ownerID {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *mockCampaignRepo) BeginDispatch(ctx context.Context, id string, version int) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c := r.st.campaigns[id]
	if c.Version != version || c.Status == model.CampaignDispatching {
		return 0, appErrors.NewAlreadyDispatching(id)
	}
	now := r.st.nowLocked()
	c.PreviousStatus = c.Status
	c.Status = model.CampaignDispatching
	c.DispatchStartedAt = &now
	c.DispatchHeartbeatAt = &now
	c.Version++
	return c.Version, nil
}

func (r *mockCampaignRepo) TouchDispatch(ctx context.Context, id string, token int) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.touchCalls++
	c := r.st.campaigns[id]
	if c.Status != model.CampaignDispatching || c.Version != token {
		r.st.touchMisses++
		return false, nil
	}
	now := r.st.nowLocked()
	c.DispatchHeartbeatAt = &now
	return true, nil
}

func (r *mockCampaignRepo) FinishDispatch(ctx context.Context, id string, token int, stats *model.CampaignStats, activate bool) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.finishCalls++
	c := r.st.campaigns[id]
	if c.Status != model.CampaignDispatching || c.Version != token {
		return false, nil
	}
	if stats != nil {
		c.Stats = *stats
	}
	if activate {
		now := r.st.nowLocked()
		c.Status = model.CampaignActive
		c.SubmittedAt = &now
	} else {
		c.Status = c.PreviousStatus
	}
	c.PreviousStatus = ""
	c.DispatchStartedAt = nil
	c.DispatchHeartbeatAt = nil
	c.Version++
	return true, nil
}

func (r *mockCampaignRepo) ReleaseStaleGuards(ctx context.Context, heartbeatBefore time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for _, c := range r.st.campaigns {
		if c.Status == model.CampaignDispatching && c.DispatchHeartbeatAt != nil && c.DispatchHeartbeatAt.Before(heartbeatBefore) {
			c.Status = c.PreviousStatus
			c.PreviousStatus = ""
			c.DispatchStartedAt = nil
			c.DispatchHeartbeatAt = nil
			c.Version++
			n++
		}
	}
	return n, nil
}

func (r *mockCampaignRepo) ComputeStats(ctx context.Context, campaignID string) (model.CampaignStats, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var stats model.CampaignStats
	for _, s := range r.st.scripts {
		if s.CampaignID != campaignID {
			continue
		}
		stats.TotalScripts++
		stats.DropsSent += s.Delivery.SentCount
		stats.DropsFailed += s.Delivery.FailedCount
		switch s.Delivery.Status {
		case model.DeliverySent:
			stats.SentScripts++
		case model.DeliveryFailed:
			stats.FailedScripts++
		default:
			stats.PendingScripts++
		}
	}
	return stats, nil
}

type mockUserRepo struct{ st *memStore }

func (r *mockUserRepo) GetForwardingNumber(ctx context.Context, userID string) (string, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.st.forwarding[userID], nil
}

type mockScriptRepo struct{ st *memStore }

func (r *mockScriptRepo) ListByCampaign(ctx context.Context, campaignID string) ([]*model.Script, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	out := []*model.Script{}
	for _, s := range r.st.scripts {
		if s.CampaignID == campaignID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *mockScriptRepo) find(id string) *model.Script {
	for _, s := range r.st.scripts {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (r *mockScriptRepo) MarkSent(ctx context.Context, scriptID, providerMessageID string, sentAt time.Time) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s := r.find(scriptID)
	if s == nil || s.Delivery.Status != model.DeliveryNotSent {
		return false, nil
	}
	s.Delivery.Status = model.DeliverySent
	s.Delivery.ProviderMessageID = providerMessageID
	s.Delivery.SentAt = &sentAt
	s.Delivery.SentCount++
	return true, nil
}

func (r *mockScriptRepo) MarkFailed(ctx context.Context, scriptID, reason string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s := r.find(scriptID)
	if s == nil || s.Delivery.Status != model.DeliveryNotSent {
		return false, nil
	}
	s.Delivery.Status = model.DeliveryFailed
	s.Delivery.FailureReason = reason
	s.Delivery.FailedCount++
	return true, nil
}

func (r *mockScriptRepo) RecordBroadcastTotals(ctx context.Context, scriptID string, sent, failed int) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s := r.find(scriptID)
	if s == nil {
		return fmt.Errorf("script %s not found", scriptID)
	}
	s.Delivery.SentCount = sent
	s.Delivery.FailedCount = failed
	if sent > 0 {
		now := time.Now()
		s.Delivery.Status = model.DeliverySent
		s.Delivery.SentAt = &now
	}
	return nil
}

type mockContactRepo struct{ st *memStore }

func (r *mockContactRepo) ListUndeliveredForCampaign(ctx context.Context, campaignID, scriptID string) ([]*model.Contact, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	delivered := map[string]bool{}
	for _, a := range r.st.attempts {
		if a.ScriptID == scriptID && a.Status == model.AttemptSuccess {
			delivered[a.ContactID] = true
		}
	}
	out := []*model.Contact{}
	for _, id := range r.st.members[campaignID] {
		if c, ok := r.st.contacts[id]; ok && !delivered[id] {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *mockContactRepo) GetByIDs(ctx context.Context, ownerID string, ids []string) ([]*model.Contact, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	out := []*model.Contact{}
	for _, id := range ids {
		if c, ok := r.st.contacts[id]; ok && c.OwnerID == ownerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockExecutionRepo struct{ st *memStore }

func (r *mockExecutionRepo) Create(ctx context.Context, rec *model.ExecutionRecord) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.executionErr != nil {
		return r.st.executionErr
	}
	rec.CreatedAt = time.Now()
	cp := *rec
	r.st.executions = append(r.st.executions, &cp)
	return nil
}

func (r *mockExecutionRepo) ListByCampaign(ctx context.Context, campaignID string, limit int) ([]*model.ExecutionRecord, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	out := []*model.ExecutionRecord{}
	for i := len(r.st.executions) - 1; i >= 0 && len(out) < limit; i-- {
		if r.st.executions[i].CampaignID == campaignID {
			out = append(out, r.st.executions[i])
		}
	}
	return out, nil
}

type mockAttemptRepo struct{ st *memStore }

func (r *mockAttemptRepo) Create(ctx context.Context, a *model.DeliveryAttempt) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	cp := *a
	r.st.attempts = append(r.st.attempts, &cp)
	return nil
}

// --- Mock provider ---

type mockProvider struct {
	mu           sync.Mutex
	unconfigured bool
	failUpload   map[string]bool // by source URL
	failDispatch map[string]bool // by phone
	panicOn      map[string]bool // by phone
	gates        map[string]*gate
	uploads      []string
	drops        []provider.DispatchRequest
}

// gate parks DispatchMessage for one phone until released.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		failUpload:   map[string]bool{},
		failDispatch: map[string]bool{},
		panicOn:      map[string]bool{},
		gates:        map[string]*gate{},
	}
}

func (p *mockProvider) holdAt(phone string) *gate {
	p.mu.Lock()
	defer p.mu.Unlock()
	g := &gate{entered: make(chan struct{}, 1), release: make(chan struct{})}
	p.gates[phone] = g
	return g
}

func (p *mockProvider) CheckConfigured() error {
	if p.unconfigured {
		return appErrors.NewMissingCredentials("secret")
	}
	return nil
}

func (p *mockProvider) UploadMedia(ctx context.Context, sourceURL, filename string) (provider.MediaRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uploads = append(p.uploads, sourceURL)
	if p.failUpload[sourceURL] {
		return "", &provider.UploadError{Stage: "fetch", StatusCode: 404, Err: errors.New("source audio unavailable")}
	}
	return provider.MediaRef("media-" + filename), nil
}

func (p *mockProvider) DispatchMessage(ctx context.Context, r provider.DispatchRequest) (provider.MessageID, error) {
	p.mu.Lock()
	g := p.gates[r.Phone]
	p.mu.Unlock()
	if g != nil {
		g.entered <- struct{}{}
		<-g.release
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicOn[r.Phone] {
		panic("provider exploded")
	}
	p.drops = append(p.drops, r)
	if p.failDispatch[r.Phone] {
		return "", &provider.DispatchError{StatusCode: 400, Err: errors.New("invalid destination")}
	}
	return provider.MessageID(fmt.Sprintf("drop-%d", len(p.drops))), nil
}

func (p *mockProvider) dropCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.drops)
}

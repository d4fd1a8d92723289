package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"onboarding-funnel/pkg/clients/airtable"
	"onboarding-funnel/pkg/clients/shortio"
	"onboarding-funnel/pkg/clients/textmagic"
	"onboarding-funnel/pkg/funnel"
	"onboarding-funnel/pkg/models"
	"onboarding-funnel/pkg/store"
	"onboarding-funnel/pkg/utils"
)

// LeadService syncs completed onboardings to the CRM and nudges visitors
// who abandon the last step.
type LeadService interface {
	RecordCompletion(step1 models.Step1Record, step2 models.Step2Record, step3 models.Step3Record)
	ScheduleReminder(visitorID string, step1 models.Step1Record, step2 models.Step2Record)
	Close()
}

// LeadConfig configures the lead service
type LeadConfig struct {
	LeadsTable    string
	ResumeURL     string
	FollowupDelay time.Duration
}

type leadServiceImpl struct {
	airtableClient  airtable.Client
	textMagicClient textmagic.Client
	shortIOClient   shortio.Client
	store           store.Store
	config          LeadConfig
	logger          *zap.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	stop      chan struct{}
	mu        sync.Mutex
	closed    bool
	wg        sync.WaitGroup
	scheduled sync.Map
}

const completionTimeout = 30 * time.Second

// NewLeadService creates a lead service. Any nil client disables the part
// that needs it.
func NewLeadService(
	airtableClient airtable.Client,
	textMagicClient textmagic.Client,
	shortIOClient shortio.Client,
	st store.Store,
	config LeadConfig,
	logger *zap.Logger,
) LeadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &leadServiceImpl{
		ctx:             ctx,
		cancel:          cancel,
		airtableClient:  airtableClient,
		textMagicClient: textMagicClient,
		shortIOClient:   shortIOClient,
		store:           st,
		config:          config,
		logger:          logger,
		stop:            make(chan struct{}),
	}
}

// spawn runs fn in the background unless the service is closing. Close
// waits for everything spawned.
func (s *leadServiceImpl) spawn(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

// RecordCompletion syncs the onboarded business to Airtable in the
// background.
func (s *leadServiceImpl) RecordCompletion(step1 models.Step1Record, step2 models.Step2Record, step3 models.Step3Record) {
	if s.airtableClient == nil {
		return
	}
	ok := s.spawn(func() {
		ctx, cancel := context.WithTimeout(s.ctx, completionTimeout)
		defer cancel()
		s.recordCompletion(ctx, step1, step2, step3)
	})
	if !ok {
		s.logger.Warn("lead service closed, skipping CRM sync")
	}
}

// recordCompletion writes the lead unless a record with the same email
// hash already exists
func (s *leadServiceImpl) recordCompletion(ctx context.Context, step1 models.Step1Record, step2 models.Step2Record, step3 models.Step3Record) {
	hash := utils.HashIdentity(step1.BusinessEmail)
	log := s.logger.With(zap.String("hash", hash))

	exists, err := s.airtableClient.RecordExists(ctx, s.config.LeadsTable, hash)
	if err != nil {
		log.Error("error checking leads table", zap.Error(err))
		return
	}
	if exists {
		log.Info("skipping CRM sync, business already recorded")
		return
	}

	record := map[string]any{
		"hash":                hash,
		"business_name":       step1.BusinessName,
		"business_email":      step1.BusinessEmail,
		"country":             step1.Country,
		"contact_name":        step2.ContactName,
		"phone_number":        step2.PhoneNumber,
		"job_title":           step2.JobTitle,
		"business_type":       step3.BusinessType,
		"registration_number": step3.RegistrationNumber,
		"monthly_volume":      step3.MonthlyVolume,
	}
	if err := s.airtableClient.CreateRecord(ctx, s.config.LeadsTable, record); err != nil {
		log.Error("error creating lead record", zap.Error(err))
	}
}

// ScheduleReminder waits for the follow-up delay, then texts a resume link
// if the visitor still has not finished. One reminder per visitor is
// pending at a time.
func (s *leadServiceImpl) ScheduleReminder(visitorID string, step1 models.Step1Record, step2 models.Step2Record) {
	if s.textMagicClient == nil || s.shortIOClient == nil || step2.PhoneNumber == "" {
		return
	}
	if _, pending := s.scheduled.LoadOrStore(visitorID, struct{}{}); pending {
		return
	}

	ok := s.spawn(func() {
		defer s.scheduled.Delete(visitorID)

		select {
		case <-time.After(s.config.FollowupDelay):
		case <-s.stop:
			return
		}
		s.sendReminder(s.ctx, visitorID, step1, step2)
	})
	if !ok {
		s.scheduled.Delete(visitorID)
		return
	}
	s.logger.Info("setting follow-up timer", zap.String("hash", utils.HashIdentity(step1.BusinessEmail)))
}

func (s *leadServiceImpl) sendReminder(ctx context.Context, visitorID string, step1 models.Step1Record, step2 models.Step2Record) {
	log := s.logger.With(zap.String("hash", utils.HashIdentity(step1.BusinessEmail)))

	// Completion deletes the step records, so a surviving step 1 means the
	// funnel is still open.
	open, err := store.Has(ctx, s.store, visitorID, funnel.Step1Key)
	if err != nil {
		log.Error("error checking funnel state", zap.Error(err))
		return
	}
	if !open {
		log.Info("skipping reminder, onboarding finished")
		return
	}

	params := url.Values{}
	params.Add("email", step1.BusinessEmail)
	shortLink, err := s.shortIOClient.CreateShortLink(ctx, fmt.Sprintf("%s?%s", s.config.ResumeURL, params.Encode()))
	if err != nil {
		log.Error("error creating short link", zap.Error(err))
		return
	}

	first, last := splitName(step2.ContactName)
	contactID, err := s.textMagicClient.GetOrCreateContact(ctx, step2.PhoneNumber, first, last)
	if err != nil {
		log.Error("error with TextMagic API", zap.Error(err))
		return
	}

	message := fmt.Sprintf("Hello %s! Finish setting up %s on Tazapay here: %s", first, step1.BusinessName, shortLink)
	if err := s.textMagicClient.SendMessage(ctx, contactID, message); err != nil {
		log.Error("error sending reminder", zap.Error(err))
		return
	}
	log.Info("sent onboarding reminder")
}

// Close cancels pending reminders, waits for in-flight CRM writes and
// reminders, then refuses new work.
func (s *leadServiceImpl) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.cancel()
}

func splitName(full string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(full), " ")
	return first, strings.TrimSpace(last)
}

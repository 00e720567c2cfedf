package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/proposta360/proposal-analytics/models"
	"github.com/proposta360/proposal-analytics/realtime"
	"github.com/proposta360/proposal-analytics/services"
	"github.com/proposta360/proposal-analytics/utils"
)

// DefaultPollInterval is how often the scheduler looks for due follow-ups.
// Override with FOLLOWUP_POLL_MINUTES.
const DefaultPollInterval = 5 * time.Minute

// BatchLimit caps how many due tasks one tick processes, oldest-due first.
const BatchLimit = 50

func pollInterval() time.Duration {
	if v := os.Getenv("FOLLOWUP_POLL_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			return time.Duration(minutes) * time.Minute
		}
	}
	return DefaultPollInterval
}

// dueFollowUp is one selected task joined with the proposal and owner
// fields needed to build the outbound message.
type dueFollowUp struct {
	ID            int64
	ProposalID    int64
	Channel       string
	Message       string
	Attempts      int
	ProposalTitle string
	OwnerID       int64
	OwnerName     string
	OwnerEmail    string
	OwnerWhatsApp string
}

// FollowUpScheduler polls for due pending follow-up tasks and dispatches
// them over their channel with a bounded retry budget.
type FollowUpScheduler struct {
	db           *sql.DB
	hub          *realtime.Hub
	pollInterval time.Duration

	// Channel senders, swappable in tests.
	sendEmail    func(to, subject, body string) error
	sendWhatsApp func(to, message string) error

	// Control
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	running    bool
	processing bool
	mu         sync.Mutex
}

func NewFollowUpScheduler(db *sql.DB, hub *realtime.Hub) *FollowUpScheduler {
	return &FollowUpScheduler{
		db:           db,
		hub:          hub,
		pollInterval: pollInterval(),
		sendEmail:    utils.SendEmail,
		sendWhatsApp: utils.SendWhatsAppMessage,
	}
}

// Start launches the poll loop. An already running scheduler errors.
func (s *FollowUpScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("follow-up scheduler already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true

	s.wg.Add(1)
	go s.loop()

	log.Printf("Follow-up scheduler started (interval %v)", s.pollInterval)
	return nil
}

// Stop cancels the loop and waits for an in-flight tick to finish, so a
// shutdown never abandons a half-processed batch.
func (s *FollowUpScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("Follow-up scheduler stopped")
}

func (s *FollowUpScheduler) loop() {
	defer s.wg.Done()

	// Process immediately on startup, then on every tick.
	s.ProcessDueFollowUps()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.ProcessDueFollowUps()
		}
	}
}

// ProcessDueFollowUps runs one tick: select up to BatchLimit due pending
// tasks with attempts left, oldest-due first, and process each. A tick that
// starts while another is still running is skipped so a task can never be
// retried twice concurrently.
func (s *FollowUpScheduler) ProcessDueFollowUps() {
	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return
	}
	s.processing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
	}()

	due, err := s.selectDue()
	if err != nil {
		log.Println("Error selecting due follow-ups:", err)
		return
	}

	if len(due) == 0 {
		return
	}
	log.Printf("Processing %d due follow-ups", len(due))

	for _, followUp := range due {
		s.processFollowUp(followUp)
	}
}

func (s *FollowUpScheduler) selectDue() ([]dueFollowUp, error) {
	rows, err := s.db.Query(`
		SELECT fs.id, fs.proposal_id, fs.follow_up_type, fs.message, fs.attempts,
		       p.title, p.user_id, u.name, u.email, COALESCE(u.whatsapp_number, '')
		FROM follow_up_schedule fs
		INNER JOIN proposals p ON fs.proposal_id = p.id
		INNER JOIN users u ON p.user_id = u.id
		WHERE fs.status = 'pending'
		  AND fs.scheduled_for <= NOW()
		  AND fs.attempts < $1
		ORDER BY fs.scheduled_for ASC
		LIMIT $2`,
		models.MaxFollowUpAttempts, BatchLimit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	due := []dueFollowUp{}
	for rows.Next() {
		var f dueFollowUp
		err = rows.Scan(&f.ID, &f.ProposalID, &f.Channel, &f.Message, &f.Attempts,
			&f.ProposalTitle, &f.OwnerID, &f.OwnerName, &f.OwnerEmail, &f.OwnerWhatsApp)
		if err != nil {
			return nil, err
		}
		due = append(due, f)
	}
	return due, rows.Err()
}

// processFollowUp burns one attempt, dispatches over the task's channel and
// records the terminal outcome. The attempt is counted before delivery so a
// crash mid-send still spends retry budget.
func (s *FollowUpScheduler) processFollowUp(followUp dueFollowUp) {
	_, err := s.db.Exec(`
		UPDATE follow_up_schedule
		SET attempts = attempts + 1, last_attempt_at = NOW()
		WHERE id = $1`,
		followUp.ID,
	)
	if err != nil {
		// Task stays pending and will be reselected next tick.
		log.Printf("Error recording attempt for follow-up %d: %v", followUp.ID, err)
		return
	}

	sendErr := s.dispatch(followUp)

	status := models.FollowUpSent
	errorMessage := ""
	if sendErr != nil {
		status = models.FollowUpFailed
		errorMessage = sendErr.Error()
		log.Printf("Follow-up %d failed: %v", followUp.ID, sendErr)
	}

	_, err = s.db.Exec(`
		UPDATE follow_up_schedule
		SET status = $1, error_message = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $3`,
		status, errorMessage, followUp.ID,
	)
	if err != nil {
		log.Printf("Error recording outcome for follow-up %d: %v", followUp.ID, err)
		return
	}

	if sendErr == nil && s.hub != nil {
		s.hub.Push(followUp.OwnerID, realtime.Frame("notification", map[string]interface{}{
			"message": fmt.Sprintf("Follow-up %s sent for proposal %q", followUp.Channel, followUp.ProposalTitle),
		}))
	}
}

func (s *FollowUpScheduler) dispatch(followUp dueFollowUp) error {
	switch followUp.Channel {
	case models.ChannelEmail:
		subject := fmt.Sprintf("Follow-up: %s", followUp.ProposalTitle)
		body := followUp.Message + "\n\nProposal: " + followUp.ProposalTitle + "\nRegards, " + followUp.OwnerName
		return s.sendEmail(followUp.OwnerEmail, subject, body)
	case models.ChannelWhatsApp:
		message := fmt.Sprintf("%s\n\nProposal: %s", followUp.Message, followUp.ProposalTitle)
		return s.sendWhatsApp(followUp.OwnerWhatsApp, message)
	case models.ChannelReminder:
		proposalID := followUp.ProposalID
		_, err := services.CreateNotification(s.db, s.hub, models.NotificationInsert{
			UserID:     followUp.OwnerID,
			ProposalID: &proposalID,
			Type:       models.NotificationReminder,
			Title:      "Reminder: " + followUp.ProposalTitle,
			Message:    followUp.Message,
		})
		return err
	default:
		return fmt.Errorf("unknown follow-up channel %q", followUp.Channel)
	}
}

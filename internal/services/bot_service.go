// internal/services/bot_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/campushub/backend/internal/models"
	"github.com/campushub/backend/pkg/whatsapp"
)

const (
	botSessionPrefix = "whatsapp:session:"
	botListingLimit  = 5

	BotStateMenu     = "menu"
	botBrowsingState = "browsing:"
)

// BotSession is the conversation state of one phone number.
type BotSession struct {
	State     string    `json:"state"`
	Options   []string  `json:"options,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Browsing reports the listing kind the user is browsing, if any.
func (s *BotSession) Browsing() (models.OpportunityKind, bool) {
	if s == nil || !strings.HasPrefix(s.State, botBrowsingState) {
		return "", false
	}
	return models.OpportunityKind(strings.TrimPrefix(s.State, botBrowsingState)), true
}

// SessionStore persists bot sessions keyed by E.164 phone number. Get
// returns nil without error when there is no session.
type SessionStore interface {
	Get(ctx context.Context, phone string) (*BotSession, error)
	Save(ctx context.Context, phone string, session *BotSession) error
	Delete(ctx context.Context, phone string) error
}

// RedisSessionStore keeps sessions as JSON values that expire after ttl of
// inactivity.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (s *RedisSessionStore) Get(ctx context.Context, phone string) (*BotSession, error) {
	raw, err := s.client.Get(ctx, botSessionPrefix+phone).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load bot session: %w", err)
	}

	var session BotSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("corrupt bot session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, phone string, session *BotSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, botSessionPrefix+phone, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store bot session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, phone string) error {
	if err := s.client.Del(ctx, botSessionPrefix+phone).Err(); err != nil {
		return fmt.Errorf("failed to delete bot session: %w", err)
	}
	return nil
}

// BotService answers WhatsApp messages with a keyword menu over the
// marketplace and the token ledger.
type BotService struct {
	sessions      SessionStore
	sender        MessageSender
	users         *UserService
	opportunities *OpportunityService
	tokens        *TokenService
	now           func() time.Time
}

func NewBotService(sessions SessionStore, sender MessageSender, users *UserService, opportunities *OpportunityService, tokens *TokenService) *BotService {
	return &BotService{
		sessions:      sessions,
		sender:        sender,
		users:         users,
		opportunities: opportunities,
		tokens:        tokens,
		now:           time.Now,
	}
}

const botMenu = `Welcome to CampusHub! Reply with a number or a keyword:
1. jobs - latest jobs
2. internships - latest internships
3. items - items for sale
4. balance - your token balance
5. claim - claim today's tokens
6. help`

const botHelp = `Reply "menu" at any time to see the options.
While browsing a list, reply with the number of a listing to see its details.
To use "balance" and "claim", add this phone number to your CampusHub profile.`

const botFallback = `Sorry, I did not understand that. Reply "menu" to see what I can do.`

var browseCommands = map[string]models.OpportunityKind{
	"1":           models.OpportunityKindJob,
	"jobs":        models.OpportunityKindJob,
	"job":         models.OpportunityKindJob,
	"2":           models.OpportunityKindInternship,
	"internships": models.OpportunityKindInternship,
	"internship":  models.OpportunityKindInternship,
	"3":           models.OpportunityKindItem,
	"items":       models.OpportunityKindItem,
	"item":        models.OpportunityKindItem,
}

// HandleMessage replies to one inbound message.
func (s *BotService) HandleMessage(ctx context.Context, msg whatsapp.InboundMessage) error {
	logger := logrus.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"type":       msg.Type,
	})

	text := msg.Body
	if text == "" {
		text = "help"
	}

	reply, err := s.Reply(ctx, msg.Phone(), text)
	if err != nil {
		logger.WithError(err).Error("Bot failed to build reply")
		reply = "Something went wrong on our side. Please try again in a moment."
	}

	if s.sender == nil {
		logger.Debug("No WhatsApp sender configured, reply dropped")
		return nil
	}

	if _, err := s.sender.SendText(ctx, msg.Phone(), reply); err != nil {
		logger.WithError(err).Warn("Failed to send WhatsApp reply")
		return err
	}
	return nil
}

// Reply computes the answer to text from phone and advances the session.
func (s *BotService) Reply(ctx context.Context, phone, text string) (string, error) {
	command := strings.ToLower(strings.TrimSpace(text))

	session, err := s.sessions.Get(ctx, phone)
	if err != nil {
		logrus.WithError(err).Warn("Bot session unavailable")
	}

	if kind, ok := session.Browsing(); ok {
		if choice, err := strconv.Atoi(command); err == nil && choice > 0 {
			return s.listingDetails(ctx, phone, session, kind, choice)
		}
	}

	if kind, ok := browseCommands[command]; ok {
		return s.browse(ctx, phone, kind)
	}

	switch command {
	case "hi", "hello", "hey", "menu", "start", "0":
		s.save(ctx, phone, &BotSession{State: BotStateMenu})
		return botMenu, nil
	case "4", "balance":
		return s.balance(ctx, phone)
	case "5", "claim":
		return s.claimDaily(ctx, phone)
	case "6", "help":
		return botHelp, nil
	}

	return botFallback, nil
}

func (s *BotService) browse(ctx context.Context, phone string, kind models.OpportunityKind) (string, error) {
	listings, err := s.opportunities.Latest(kind, botListingLimit)
	if err != nil {
		return "", err
	}
	if len(listings) == 0 {
		s.save(ctx, phone, &BotSession{State: BotStateMenu})
		return fmt.Sprintf("There are no open %s right now. Reply \"menu\" to go back.", kindLabel(kind)), nil
	}

	options := make([]string, 0, len(listings))
	var b strings.Builder
	fmt.Fprintf(&b, "Latest %s:\n", kindLabel(kind))
	for i, opp := range listings {
		options = append(options, opp.ID.String())
		fmt.Fprintf(&b, "%d. %s", i+1, opp.Title)
		if !opp.Price.IsZero() {
			fmt.Fprintf(&b, " - %s %s", opp.Price.StringFixed(2), opp.Currency)
		}
		b.WriteString("\n")
	}
	b.WriteString("Reply with a number for details, or \"menu\" to go back.")

	s.save(ctx, phone, &BotSession{State: botBrowsingState + string(kind), Options: options})
	return b.String(), nil
}

func (s *BotService) listingDetails(ctx context.Context, phone string, session *BotSession, kind models.OpportunityKind, choice int) (string, error) {
	if choice > len(session.Options) {
		return fmt.Sprintf("Please reply with a number between 1 and %d.", len(session.Options)), nil
	}

	id, err := uuid.Parse(session.Options[choice-1])
	if err != nil {
		s.save(ctx, phone, &BotSession{State: BotStateMenu})
		return botFallback, nil
	}

	opp, err := s.opportunities.Get(id)
	if err != nil {
		if errors.Is(err, ErrOpportunityNotFound) {
			return "That listing is no longer available.", nil
		}
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", opp.Title)
	if opp.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", opp.Company)
	}
	if opp.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", opp.Location)
	}
	if !opp.Price.IsZero() {
		fmt.Fprintf(&b, "Price: %s %s\n", opp.Price.StringFixed(2), opp.Currency)
	}
	if opp.Status != models.OpportunityStatusOpen {
		fmt.Fprintf(&b, "Status: %s\n", opp.Status)
	}
	b.WriteString("\n")
	b.WriteString(truncateRunes(opp.DescriptionMarkdown, 600))
	fmt.Fprintf(&b, "\n\nReply with another number to keep browsing %s.", kindLabel(kind))

	session.UpdatedAt = s.now().UTC()
	s.save(ctx, phone, session)
	return b.String(), nil
}

func (s *BotService) balance(ctx context.Context, phone string) (string, error) {
	profile, reply, err := s.linkedProfile(phone)
	if profile == nil {
		return reply, err
	}

	balance, err := s.tokens.GetBalance(ctx, profile.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Hi %s, your balance is %d tokens.", profile.DisplayName, balance.Balance), nil
}

func (s *BotService) claimDaily(ctx context.Context, phone string) (string, error) {
	profile, reply, err := s.linkedProfile(phone)
	if profile == nil {
		return reply, err
	}

	result, err := s.tokens.Claim(ctx, profile.ID, models.ClaimTypeDaily)
	if err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			return "You have already claimed today's tokens. Come back tomorrow!", nil
		}
		return "", err
	}
	return fmt.Sprintf("You earned %d tokens. Your balance is now %d tokens.", result.Claim.TokensEarned, result.Balance), nil
}

// linkedProfile resolves the profile for phone. A nil profile comes with
// the reply to send instead.
func (s *BotService) linkedProfile(phone string) (*models.Profile, string, error) {
	profile, err := s.users.FindByPhone(phone)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, "This number is not linked to a CampusHub account. Add it to your profile on the website, then try again.", nil
		}
		return nil, "", err
	}
	return profile, "", nil
}

func (s *BotService) save(ctx context.Context, phone string, session *BotSession) {
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = s.now().UTC()
	}
	if err := s.sessions.Save(ctx, phone, session); err != nil {
		logrus.WithError(err).Warn("Failed to save bot session")
	}
}

func kindLabel(kind models.OpportunityKind) string {
	switch kind {
	case models.OpportunityKindJob:
		return "jobs"
	case models.OpportunityKindInternship:
		return "internships"
	default:
		return "items"
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "..."
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campushub/backend/internal/models"
	"github.com/campushub/backend/internal/testutil"
	"github.com/campushub/backend/pkg/whatsapp"
)

const botPhone = "+233551234567"

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

type botFixture struct {
	db       *gorm.DB
	bot      *BotService
	sessions *RedisSessionStore
	sender   *recordingSender
	redis    *miniredis.Miniredis
}

func newBotFixture(t *testing.T) *botFixture {
	db := testutil.NewTestDB(t)
	client, mr := setupTestRedis(t)
	cfg := testutil.TestConfig()

	tokens, err := NewTokenService(db, cfg)
	require.NoError(t, err)

	sessions := NewRedisSessionStore(client, cfg.WhatsApp.SessionTTL)
	sender := &recordingSender{}
	bot := NewBotService(
		sessions,
		sender,
		NewUserService(db),
		NewOpportunityService(db, cfg, NewMarkdownService()),
		tokens,
	)
	return &botFixture{db: db, bot: bot, sessions: sessions, sender: sender, redis: mr}
}

func TestRedisSessionStore(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisSessionStore(client, time.Minute)
	ctx := context.Background()

	session, err := store.Get(ctx, botPhone)
	require.NoError(t, err)
	assert.Nil(t, session)

	require.NoError(t, store.Save(ctx, botPhone, &BotSession{
		State:   "browsing:job",
		Options: []string{"a", "b"},
	}))

	session, err = store.Get(ctx, botPhone)
	require.NoError(t, err)
	require.NotNil(t, session)
	kind, ok := session.Browsing()
	assert.True(t, ok)
	assert.Equal(t, models.OpportunityKindJob, kind)
	assert.Equal(t, []string{"a", "b"}, session.Options)
	assert.Equal(t, time.Minute, mr.TTL(botSessionPrefix+botPhone))

	mr.FastForward(2 * time.Minute)
	session, err = store.Get(ctx, botPhone)
	require.NoError(t, err)
	assert.Nil(t, session)

	require.NoError(t, store.Save(ctx, botPhone, &BotSession{State: BotStateMenu}))
	require.NoError(t, store.Delete(ctx, botPhone))
	assert.False(t, mr.Exists(botSessionPrefix+botPhone))
}

func TestBotMenuAndFallback(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	reply, err := f.bot.Reply(ctx, botPhone, "Hi")
	require.NoError(t, err)
	assert.Equal(t, botMenu, reply)

	session, err := f.sessions.Get(ctx, botPhone)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, BotStateMenu, session.State)

	reply, err = f.bot.Reply(ctx, botPhone, "what is this")
	require.NoError(t, err)
	assert.Equal(t, botFallback, reply)

	reply, err = f.bot.Reply(ctx, botPhone, "HELP")
	require.NoError(t, err)
	assert.Equal(t, botHelp, reply)
}

func TestBotBrowseAndSelectListing(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()
	owner := testutil.CreateProfile(t, f.db, "employer")
	job := testutil.CreateOpportunity(t, f.db, owner, models.OpportunityKindJob, "Campus barista", decimal.NewFromInt(15))
	testutil.CreateOpportunity(t, f.db, owner, models.OpportunityKindItem, "Calculator", decimal.NewFromInt(40))

	reply, err := f.bot.Reply(ctx, botPhone, "jobs")
	require.NoError(t, err)
	assert.Contains(t, reply, "1. Campus barista - 15.00 GHS")
	assert.NotContains(t, reply, "Calculator")

	session, err := f.sessions.Get(ctx, botPhone)
	require.NoError(t, err)
	assert.Equal(t, "browsing:job", session.State)
	assert.Equal(t, []string{job.ID.String()}, session.Options)

	reply, err = f.bot.Reply(ctx, botPhone, "1")
	require.NoError(t, err)
	assert.Contains(t, reply, "*Campus barista*")
	assert.Contains(t, reply, "Location: Accra")

	reply, err = f.bot.Reply(ctx, botPhone, "4")
	require.NoError(t, err)
	assert.Contains(t, reply, "between 1 and 1")

	// Leaving the list makes numbers menu choices again
	_, err = f.bot.Reply(ctx, botPhone, "menu")
	require.NoError(t, err)
	reply, err = f.bot.Reply(ctx, botPhone, "3")
	require.NoError(t, err)
	assert.Contains(t, reply, "Calculator")
}

func TestBotBrowseEmptyKind(t *testing.T) {
	f := newBotFixture(t)

	reply, err := f.bot.Reply(context.Background(), botPhone, "internships")
	require.NoError(t, err)
	assert.Contains(t, reply, "no open internships")
}

func TestBotBalanceAndClaim(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	reply, err := f.bot.Reply(ctx, botPhone, "balance")
	require.NoError(t, err)
	assert.Contains(t, reply, "not linked")

	testutil.CreateProfile(t, f.db, "abena", testutil.WithPhone(botPhone))

	reply, err = f.bot.Reply(ctx, botPhone, "claim")
	require.NoError(t, err)
	assert.Contains(t, reply, "You earned 10 tokens")

	reply, err = f.bot.Reply(ctx, botPhone, "5")
	require.NoError(t, err)
	assert.Contains(t, reply, "already claimed")

	reply, err = f.bot.Reply(ctx, botPhone, "balance")
	require.NoError(t, err)
	assert.Equal(t, "Hi abena, your balance is 10 tokens.", reply)
}

func TestBotHandleMessageSendsReply(t *testing.T) {
	f := newBotFixture(t)

	err := f.bot.HandleMessage(context.Background(), whatsapp.InboundMessage{
		ID:   "wamid.1",
		From: "233551234567",
		Type: "text",
		Body: "menu",
	})
	require.NoError(t, err)

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, botPhone, f.sender.sent[0].To)
	assert.Equal(t, botMenu, f.sender.sent[0].Body)
}

func TestBotHandleMessageSurvivesSessionOutage(t *testing.T) {
	f := newBotFixture(t)
	f.redis.Close()

	err := f.bot.HandleMessage(context.Background(), whatsapp.InboundMessage{
		ID:   "wamid.2",
		From: "233551234567",
		Type: "image",
	})
	require.NoError(t, err)

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, botHelp, f.sender.sent[0].Body)
}

func TestBotHandleMessageReportsSendFailure(t *testing.T) {
	f := newBotFixture(t)
	f.sender.err = errors.New("graph api down")

	err := f.bot.HandleMessage(context.Background(), whatsapp.InboundMessage{
		ID:   "wamid.3",
		From: "233551234567",
		Type: "text",
		Body: "hi",
	})
	assert.Error(t, err)
}

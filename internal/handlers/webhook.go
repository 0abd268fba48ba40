// internal/handlers/webhook.go
package handlers

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/campushub/backend/internal/i18n"
	"github.com/campushub/backend/internal/utils"
	"github.com/campushub/backend/pkg/whatsapp"
)

// maxWebhookBody bounds the payload read from the messaging platform.
const maxWebhookBody = 1 << 20

// messageTimeout bounds the handling of one inbound message.
const messageTimeout = 30 * time.Second

// MessageHandler processes one inbound WhatsApp message.
// *services.BotService implements it.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg whatsapp.InboundMessage) error
}

type WebhookHandler struct {
	verifyToken string
	appSecret   string
	bot         MessageHandler
	wg          sync.WaitGroup
}

func NewWebhookHandler(verifyToken, appSecret string, bot MessageHandler) *WebhookHandler {
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		bot:         bot,
	}
}

// GET /webhooks/whatsapp
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || h.verifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		logrus.WithField("mode", mode).Warn("Webhook verification rejected")
		c.String(http.StatusForbidden, "Forbidden")
		return
	}

	c.String(http.StatusOK, challenge)
}

// POST /webhooks/whatsapp
//
// Only bodies signed with the app secret are read. Well-formed JSON is then
// always acknowledged so the platform does not retry; messages are handled
// in the background.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error"})
		return
	}

	if !whatsapp.VerifySignature(body, c.GetHeader(whatsapp.SignatureHeader), h.appSecret) {
		lang := utils.GetLangFromContext(c)
		logrus.WithField("client_ip", c.ClientIP()).Warn("Webhook signature rejected")
		utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyWebhookSignatureInvalid))
		return
	}

	result, err := whatsapp.ParseWebhook(body)
	if err != nil {
		logrus.WithError(err).Warn("Malformed webhook payload")
		c.JSON(http.StatusBadRequest, gin.H{"status": "error"})
		return
	}

	switch result.Kind {
	case whatsapp.Rejected:
		logrus.WithField("reason", result.Reason).Warn("Webhook payload rejected")
	case whatsapp.Accepted:
		for _, msg := range result.Messages {
			h.dispatch(msg)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *WebhookHandler) dispatch(msg whatsapp.InboundMessage) {
	if h.bot == nil {
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
		defer cancel()

		if err := h.bot.HandleMessage(ctx, msg); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"message_id": msg.ID,
				"type":       msg.Type,
			}).Error("Failed to handle WhatsApp message")
		}
	}()
}

// Wait blocks until every dispatched message has been handled.
func (h *WebhookHandler) Wait() {
	h.wg.Wait()
}

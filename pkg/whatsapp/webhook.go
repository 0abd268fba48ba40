// Package whatsapp holds the WhatsApp Cloud API webhook schema and a client
// for sending replies.
package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const objectBusinessAccount = "whatsapp_business_account"

var ErrMalformedPayload = errors.New("malformed webhook payload")

type WebhookPayload struct {
	Object string  `json:"object" validate:"required,eq=whatsapp_business_account"`
	Entry  []Entry `json:"entry" validate:"required,min=1,dive"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes" validate:"dive"`
}

type Change struct {
	Field string      `json:"field" validate:"required"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts"`
	Messages         []Message `json:"messages" validate:"dive"`
	Statuses         []Status  `json:"statuses"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type Message struct {
	From        string       `json:"from" validate:"required,numeric,min=6,max=20"`
	ID          string       `json:"id" validate:"required"`
	Timestamp   string       `json:"timestamp" validate:"omitempty,numeric"`
	Type        string       `json:"type" validate:"required"`
	Text        *TextBody    `json:"text,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Button      *ButtonBody  `json:"button,omitempty"`
}

type TextBody struct {
	Body string `json:"body"`
}

type Interactive struct {
	Type        string `json:"type"`
	ButtonReply *Reply `json:"button_reply,omitempty"`
	ListReply   *Reply `json:"list_reply,omitempty"`
}

type Reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ButtonBody struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
}

// InboundMessage is a validated message reduced to what the bot needs.
type InboundMessage struct {
	ID        string
	From      string // digits only, as WhatsApp sends it
	Name      string
	Type      string
	Body      string
	Timestamp time.Time
}

// Phone returns the sender in E.164 form.
func (m InboundMessage) Phone() string {
	return "+" + m.From
}

type ResultKind int

const (
	Accepted ResultKind = iota
	Rejected
)

func (k ResultKind) String() string {
	if k == Rejected {
		return "rejected"
	}
	return "accepted"
}

// Result is either Accepted, with zero or more messages (status callbacks
// carry none), or Rejected with the reason the payload failed validation.
type Result struct {
	Kind     ResultKind
	Messages []InboundMessage
	Reason   string
}

var validate = validator.New()

// ParseWebhook decodes and validates a webhook body. Only undecodable JSON
// is an error; a payload that decodes but fails the schema is Rejected.
func ParseWebhook(body []byte) (Result, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if err := validate.Struct(&payload); err != nil {
		return Result{Kind: Rejected, Reason: rejectionReason(err)}, nil
	}

	var messages []InboundMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				messages = append(messages, InboundMessage{
					ID:        m.ID,
					From:      m.From,
					Name:      names[m.From],
					Type:      m.Type,
					Body:      strings.TrimSpace(messageBody(m)),
					Timestamp: parseTimestamp(m.Timestamp),
				})
			}
		}
	}

	return Result{Kind: Accepted, Messages: messages}, nil
}

func messageBody(m Message) string {
	switch {
	case m.Text != nil:
		return m.Text.Body
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		return m.Interactive.ButtonReply.ID
	case m.Interactive != nil && m.Interactive.ListReply != nil:
		return m.Interactive.ListReply.ID
	case m.Button != nil:
		return m.Button.Payload
	}
	return ""
}

func parseTimestamp(ts string) time.Time {
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

func rejectionReason(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(fields, "; ")
}

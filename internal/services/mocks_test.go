package services

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/campushub/backend/pkg/assistant"
	"github.com/campushub/backend/pkg/blockchain"
	"github.com/campushub/backend/pkg/payment"
)

const testChainID int64 = 84532

const (
	testContract     = "0x00000000000000000000000000000000000000e5"
	testBuyerWallet  = "0x1111111111111111111111111111111111111111"
	testSellerWallet = "0x2222222222222222222222222222222222222222"
	testEscrowTxHash = "0xabababababababababababababababababababababababababababababababab"
	testSettleTxHash = "0xcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcd"
)

type mockChain struct {
	mock.Mock
}

func (m *mockChain) TargetChainID() int64    { return testChainID }
func (m *mockChain) ContractAddress() string { return testContract }

func (m *mockChain) ConnectWallet(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockChain) CheckNetwork(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *mockChain) SwitchToTargetNetwork(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *mockChain) PrepareEscrow(opportunityID string, amount decimal.Decimal, seller string) (*blockchain.EscrowCall, error) {
	args := m.Called(opportunityID, amount, seller)
	call, _ := args.Get(0).(*blockchain.EscrowCall)
	return call, args.Error(1)
}

func (m *mockChain) ConfirmEscrow(ctx context.Context, txHash string) (*blockchain.EscrowReceipt, error) {
	args := m.Called(ctx, txHash)
	receipt, _ := args.Get(0).(*blockchain.EscrowReceipt)
	return receipt, args.Error(1)
}

func (m *mockChain) ReleaseFunds(ctx context.Context, escrowID string) (string, error) {
	args := m.Called(ctx, escrowID)
	return args.String(0), args.Error(1)
}

func (m *mockChain) RefundBuyer(ctx context.Context, escrowID string) (string, error) {
	args := m.Called(ctx, escrowID)
	return args.String(0), args.Error(1)
}

func (m *mockChain) GetEscrowDetails(ctx context.Context, escrowID string) (*blockchain.EscrowState, error) {
	args := m.Called(ctx, escrowID)
	state, _ := args.Get(0).(*blockchain.EscrowState)
	return state, args.Error(1)
}

// fakeProvider records charges and refunds.
type fakeProvider struct {
	method    string
	result    *payment.ChargeResult
	err       error
	refundErr error
	onCharge  func(req payment.ChargeRequest)

	mu      sync.Mutex
	charges []payment.ChargeRequest
	refunds []string
}

func (p *fakeProvider) Method() string { return p.method }

func (p *fakeProvider) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.charges = append(p.charges, req)
	if p.onCharge != nil {
		p.onCharge(req)
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

func (p *fakeProvider) Refund(ctx context.Context, reference string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunds = append(p.refunds, reference)
	return p.refundErr
}

type sentEmail struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// recordingMailer collects sent emails; delivery is asynchronous so tests
// wait on the channel.
type recordingMailer struct {
	sent chan sentEmail
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{sent: make(chan sentEmail, 16)}
}

func (m *recordingMailer) Send(to, subject, textBody, htmlBody string) error {
	m.sent <- sentEmail{To: to, Subject: subject, Text: textBody, HTML: htmlBody}
	return nil
}

type sentMessage struct {
	To   string
	Body string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *recordingSender) SendText(ctx context.Context, to, body string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{To: to, Body: body})
	if s.err != nil {
		return "", s.err
	}
	return "wamid.test", nil
}

type stubAssistant struct {
	system   string
	messages []assistant.Message
	reply    string
	err      error
}

func (a *stubAssistant) Complete(ctx context.Context, system string, messages []assistant.Message) (string, error) {
	a.system = system
	a.messages = messages
	return a.reply, a.err
}

package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"support-chat-backend/internal/config"
	"support-chat-backend/internal/models"
)

// User-facing replies. Provider error detail never reaches the client.
const (
	emptyInputReply     = "I didn't receive a message. Could you please try again?"
	rateLimitedReply    = "I'm receiving too many requests right now. Please wait a moment and try again."
	authFailureReply    = "I'm having trouble connecting to the AI service. Please contact support."
	timeoutReply        = "The AI service is taking too long to respond. Please try again."
	unreachableReply    = "I'm having trouble reaching the AI service. Please check your connection and try again."
	genericFailureReply = "I apologize, but I'm having trouble processing your request. Please try again later."
)

const systemPrompt = `You are a helpful customer support agent for "TechStyle Store", a small e-commerce store
selling electronics and accessories. Answer clearly and concisely.

=== STORE KNOWLEDGE / FAQ ===

**About TechStyle Store:**
- We sell electronics, gadgets, phone accessories, and tech gear
- Founded in 2020, based in San Francisco, CA
- Website: www.techstyle-store.com (fictional)

**Shipping Policy:**
- FREE standard shipping on orders over $50
- Standard shipping: 5-7 business days ($4.99 for orders under $50)
- Express shipping: 2-3 business days ($12.99)
- Overnight shipping: Next business day ($24.99)
- We ship to all 50 US states
- International shipping available to Canada and UK (7-14 business days, $19.99)
- Orders placed before 2 PM EST ship same day

**Return & Refund Policy:**
- 30-day return window from delivery date
- Items must be unused and in original packaging
- FREE returns on defective items
- Return shipping fee: $5.99 for non-defective returns
- Refunds processed within 5-7 business days after we receive the item
- Original shipping costs are non-refundable
- Electronics with opened seals: 15-day return window, 15% restocking fee

**Support Hours:**
- Live Chat: Monday-Friday, 9 AM - 8 PM EST
- Email Support: support@techstyle-store.com (24-48 hour response)
- Phone Support: 1-800-TECH-STYLE, Monday-Friday, 10 AM - 6 PM EST
- Weekend Email Support: Limited, responses by Monday

**Payment Methods:**
- Credit/Debit Cards (Visa, MasterCard, Amex, Discover)
- PayPal
- Apple Pay & Google Pay
- Afterpay (Buy now, pay later in 4 installments)

**Warranty:**
- 1-year manufacturer warranty on all electronics
- Extended warranty available for purchase (2 or 3 years)
- Warranty does not cover physical damage or water damage

=== GUIDELINES ===
- Be friendly, professional, and helpful
- If you don't know something specific, suggest contacting support
- For order-specific questions, ask for the order number
- Never make up information not in the knowledge base
`

type LLMService struct {
	provider      Provider
	maxInputChars int
	timeout       time.Duration
	rateChan      chan struct{} // Token bucket
}

func NewLLMService(provider Provider, cfg config.LLMConfig) *LLMService {
	concurrent := cfg.ConcurrentRequests
	if concurrent < 1 {
		concurrent = 1
	}

	// Token bucket bounding in-flight provider calls
	rateChan := make(chan struct{}, concurrent)
	for i := 0; i < concurrent; i++ {
		rateChan <- struct{}{}
	}

	return &LLMService{
		provider:      provider,
		maxInputChars: cfg.MaxInputChars,
		timeout:       cfg.Timeout,
		rateChan:      rateChan,
	}
}

// acquireRate blocks until a rate slot is available
func (s *LLMService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *LLMService) releaseRate() {
	s.rateChan <- struct{}{}
}

// Generate asks the provider for a reply to newMessage given the prior
// history. Provider failures are turned into a user-facing reply and a nil
// error; only an unsupported provider returns an error, together with the
// generic fallback text.
func (s *LLMService) Generate(ctx context.Context, history []models.ChatMessage, newMessage string) (string, error) {
	if strings.TrimSpace(newMessage) == "" {
		return emptyInputReply, nil
	}
	newMessage = truncateRunes(newMessage, s.maxInputChars)

	messages := make([]models.ChatMessage, 0, len(history)+2)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: newMessage})

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.acquireRate(ctx); err != nil {
		log.Printf("llm: [%s] waiting for rate slot: %v", chimiddleware.GetReqID(ctx), err)
		return timeoutReply, nil
	}
	defer s.releaseRate()

	reply, err := s.provider.Complete(ctx, messages)
	if err != nil {
		var unsupported *UnsupportedProviderError
		if errors.As(err, &unsupported) {
			log.Printf("llm: [%s] %v", chimiddleware.GetReqID(ctx), err)
			return genericFailureReply, err
		}
		log.Printf("llm: [%s] %s call failed: %v", chimiddleware.GetReqID(ctx), s.provider.Name(), err)
		return failureReply(err), nil
	}
	return reply, nil
}

func failureReply(err error) string {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		switch {
		case transportErr.StatusCode == 429:
			return rateLimitedReply
		case transportErr.StatusCode == 401 || transportErr.StatusCode == 403:
			return authFailureReply
		case transportErr.Timeout:
			return timeoutReply
		case transportErr.StatusCode == 0:
			return unreachableReply
		}
		return genericFailureReply
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutReply
	}
	return genericFailureReply
}

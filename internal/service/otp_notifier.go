package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mrz1836/postmark"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/language"

	"github.com/sandeepkv93/otp-account-service/internal/domain"
	"github.com/sandeepkv93/otp-account-service/internal/i18n"
	"github.com/sandeepkv93/otp-account-service/internal/observability"
)

// OTPDelivery is the only value that ever carries a plaintext code.
type OTPDelivery struct {
	Email     string
	Code      string
	ExpiresAt time.Time
	Type      domain.OTPType
	Language  language.Tag
}

type OTPNotifier interface {
	SendOTP(ctx context.Context, delivery OTPDelivery) error
}

// LogOTPNotifier writes deliveries to the application log. The code itself is
// only logged when revealCode is set, which is meant for local development.
type LogOTPNotifier struct {
	logger     *slog.Logger
	revealCode bool
}

func NewLogOTPNotifier(logger *slog.Logger, revealCode bool) *LogOTPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogOTPNotifier{logger: logger, revealCode: revealCode}
}

func (n *LogOTPNotifier) SendOTP(ctx context.Context, d OTPDelivery) error {
	attrs := []any{
		"email", d.Email,
		"type", string(d.Type),
		"expires_at", d.ExpiresAt,
		"language", d.Language.String(),
	}
	if n.revealCode {
		attrs = append(attrs, "dev_code", d.Code)
	}
	n.logger.InfoContext(ctx, "otp issued", attrs...)
	observability.RecordNotifierDelivery(ctx, "log", "delivered")
	return nil
}

var ErrNotifierConfig = errors.New("invalid notifier configuration")

type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	SenderEmail  string
	SupportEmail string
	// BaseURL overrides the Postmark API endpoint.
	BaseURL string
}

type PostmarkOTPNotifier struct {
	client *postmark.Client
	cfg    PostmarkConfig
	dict   *i18n.Dictionary
	now    func() time.Time
}

func NewPostmarkOTPNotifier(cfg PostmarkConfig, dict *i18n.Dictionary) (*PostmarkOTPNotifier, error) {
	if cfg.ServerToken == "" || cfg.AccountToken == "" {
		return nil, fmt.Errorf("%w: postmark server and account tokens are required", ErrNotifierConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: sender email is required", ErrNotifierConfig)
	}
	if dict == nil {
		return nil, fmt.Errorf("%w: dictionary is required", ErrNotifierConfig)
	}
	client := postmark.NewClient(cfg.ServerToken, cfg.AccountToken)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	return &PostmarkOTPNotifier{client: client, cfg: cfg, dict: dict, now: time.Now}, nil
}

func (n *PostmarkOTPNotifier) SendOTP(ctx context.Context, d OTPDelivery) error {
	minutes := int(math.Ceil(d.ExpiresAt.Sub(n.now()).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	subject := n.dict.Message(d.Language, "otp_email_subject_"+string(d.Type), nil)
	body := n.dict.Message(d.Language, "otp_email_body", map[string]any{"code": d.Code, "minutes": minutes})

	resp, err := n.client.SendEmail(ctx, postmark.Email{
		From:     n.cfg.SenderEmail,
		ReplyTo:  n.cfg.SupportEmail,
		To:       d.Email,
		Subject:  subject,
		Tag:      "otp-" + string(d.Type),
		TextBody: body,
	})
	if err != nil {
		observability.RecordNotifierDelivery(ctx, "postmark", "error")
		return fmt.Errorf("postmark send: %w", err)
	}
	if resp.ErrorCode > 0 {
		observability.RecordNotifierDelivery(ctx, "postmark", "rejected")
		return fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	}
	observability.RecordNotifierDelivery(ctx, "postmark", "delivered")
	return nil
}

// AsyncOTPNotifier hands deliveries to a background goroutine so the request
// path does not wait on the mail provider. At most maxInflight sends run at once.
type AsyncOTPNotifier struct {
	next        OTPNotifier
	sem         *semaphore.Weighted
	sendTimeout time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var ErrNotifierClosed = errors.New("notifier closed")

func NewAsyncOTPNotifier(next OTPNotifier, maxInflight int64, sendTimeout time.Duration, logger *slog.Logger) *AsyncOTPNotifier {
	if maxInflight <= 0 {
		maxInflight = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncOTPNotifier{
		next:        next,
		sem:         semaphore.NewWeighted(maxInflight),
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// SendOTP blocks only until a delivery slot is free.
func (n *AsyncOTPNotifier) SendOTP(ctx context.Context, d OTPDelivery) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrNotifierClosed
	}
	n.wg.Add(1)
	n.mu.Unlock()

	if err := n.sem.Acquire(ctx, 1); err != nil {
		n.wg.Done()
		observability.RecordNotifierDelivery(ctx, "async", "dropped")
		return fmt.Errorf("acquire delivery slot: %w", err)
	}
	sendCtx := context.WithoutCancel(ctx)
	go func() {
		defer n.wg.Done()
		defer n.sem.Release(1)
		if n.sendTimeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(sendCtx, n.sendTimeout)
			defer cancel()
		}
		if err := n.next.SendOTP(sendCtx, d); err != nil {
			n.logger.ErrorContext(sendCtx, "otp delivery failed", "email", d.Email, "type", string(d.Type), "error", err)
			observability.RecordNotifierDelivery(sendCtx, "async", "failed")
			return
		}
		observability.RecordNotifierDelivery(sendCtx, "async", "queued_delivered")
	}()
	return nil
}

// Close stops accepting deliveries and waits for in-flight sends or ctx.
func (n *AsyncOTPNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

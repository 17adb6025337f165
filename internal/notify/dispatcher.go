package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"expensync/internal/amqp"
	"expensync/internal/core"
)

// TokenStore is the slice of storage the dispatcher needs.
type TokenStore interface {
	ListPushTokens(ctx context.Context, userID int64) ([]core.PushToken, error)
	ForgetPushToken(ctx context.Context, token string) error
}

type Dispatcher struct {
	tokens TokenStore
	sender Sender
	logger *slog.Logger
}

func NewDispatcher(tokens TokenStore, sender Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{tokens: tokens, sender: sender, logger: logger}
}

// Handle fans e out to every device of its user, or to every device for a
// broadcast. Tokens the gateway rejects are dropped. An error is returned,
// and the event redelivered, only when no device received the message;
// once one delivery succeeded the remaining failures are logged.
func (d *Dispatcher) Handle(ctx context.Context, e amqp.Event) error {
	title, body, ok := Compose(e)
	if !ok {
		d.logger.DebugContext(ctx, "Event has no notification", "event_type", e.Type)
		return nil
	}

	userID := e.UserID
	if e.Type == amqp.EventAdminBroadcast {
		userID = 0
	}
	tokens, err := d.tokens.ListPushTokens(ctx, userID)
	if err != nil {
		return fmt.Errorf("list push tokens: %w", err)
	}

	data := map[string]string{"type": string(e.Type)}
	if e.ExpenseID != 0 {
		data["expense_id"] = strconv.FormatInt(e.ExpenseID, 10)
	}

	var firstErr error
	sent := 0
	for _, t := range tokens {
		err := d.sender.Send(ctx, Message{To: t.Token, Title: title, Body: body, Data: data})
		switch {
		case err == nil:
			sent++
		case errors.Is(err, ErrInvalidToken):
			d.logger.InfoContext(ctx, "Dropping invalid push token", "user_id", t.UserID, "platform", t.Platform)
			if ferr := d.tokens.ForgetPushToken(ctx, t.Token); ferr != nil && firstErr == nil {
				firstErr = ferr
			}
		default:
			d.logger.WarnContext(ctx, "Push delivery failed", "user_id", t.UserID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	d.logger.InfoContext(ctx, "Dispatched notification",
		"event_type", e.Type,
		"tokens", len(tokens),
		"sent", sent)
	if firstErr != nil && sent > 0 {
		d.logger.WarnContext(ctx, "Partial push delivery, not retrying",
			"event_type", e.Type,
			"undelivered", len(tokens)-sent,
			"error", firstErr)
		return nil
	}
	return firstErr
}

// Compose builds the notification text for an event.
func Compose(e amqp.Event) (title, body string, ok bool) {
	amount := core.Money{Cents: e.AmountCents}.String()
	switch e.Type {
	case amqp.EventExpenseCreated:
		return "Expense saved", fmt.Sprintf("%s %s: %s", e.Category, amount, e.Description), true
	case amqp.EventExpenseUpdated:
		return "Expense updated", fmt.Sprintf("%s %s: %s", e.Category, amount, e.Description), true
	case amqp.EventExpenseDeleted:
		return "Expense deleted", fmt.Sprintf("Expense #%d was removed", e.ExpenseID), true
	case amqp.EventAdminBroadcast:
		if e.Title == "" && e.Body == "" {
			return "", "", false
		}
		return e.Title, e.Body, true
	}
	return "", "", false
}

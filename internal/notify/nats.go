package notify

import (
	"context"
	"fmt"

	"github.com/easytips/easytips/pkg/events"
)

// NATSNotifier hands messages to the notification worker over the event bus.
// Delivery past the bus is the worker's problem.
type NATSNotifier struct {
	bus events.Publisher
}

func NewNATSNotifier(bus events.Publisher) *NATSNotifier {
	return &NATSNotifier{bus: bus}
}

func (n *NATSNotifier) SendVerificationCode(ctx context.Context, recipient, code string) error {
	return n.bus.Publish(ctx, events.NotifySend, events.NotificationEvent{
		Recipient: recipient,
		Message:   fmt.Sprintf("Your EasyTips verification code is: %s", code),
	})
}

func (n *NATSNotifier) SendEmployeeInvitation(ctx context.Context, recipient, organizationName string) error {
	return n.bus.Publish(ctx, events.NotifySend, events.NotificationEvent{
		Recipient: recipient,
		Message:   fmt.Sprintf("You have been added to the organization %s. Use your phone number to log in.", organizationName),
	})
}

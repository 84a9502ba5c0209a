package notify

import (
	"context"
	"fmt"

	"github.com/easytips/easytips/pkg/logger"
)

// DevNotifier prints notifications instead of sending them.
type DevNotifier struct{}

func NewDevNotifier() *DevNotifier {
	return &DevNotifier{}
}

func (d *DevNotifier) SendVerificationCode(ctx context.Context, recipient, code string) error {
	logger.InfoContext(ctx, "[DEV NOTIFY] Verification code",
		"to", recipient,
		"code", code,
	)

	fmt.Printf("\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"VERIFICATION CODE (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s\n"+
		"Code: %s\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		recipient, code)

	return nil
}

func (d *DevNotifier) SendEmployeeInvitation(ctx context.Context, recipient, organizationName string) error {
	logger.InfoContext(ctx, "[DEV NOTIFY] Employee invitation",
		"to", recipient,
		"organization", organizationName,
	)

	fmt.Printf("\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"EMPLOYEE INVITATION (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s\n"+
		"You have been added to the organization %s. Use your phone number to log in.\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		recipient, organizationName)

	return nil
}

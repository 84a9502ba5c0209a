package notify

import "context"

// Service delivers short messages to users. Fire-and-forget: the core never
// assumes delivery happened.
type Service interface {
	SendVerificationCode(ctx context.Context, recipient, code string) error
	SendEmployeeInvitation(ctx context.Context, recipient, organizationName string) error
}

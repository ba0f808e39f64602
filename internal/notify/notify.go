// Package notify sends customer emails about subscription changes.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"stefabooks/internal/config"
	"stefabooks/internal/logger"
	"stefabooks/internal/subscription"
	"stefabooks/internal/user"
)

type emailSender interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Recipients resolves the address a user is mailed at.
type Recipients interface {
	Get(ctx context.Context, id string) (user.User, error)
}

// SESNotifier mails subscription confirmations through Amazon SES.
type SESNotifier struct {
	ses   emailSender
	from  string
	users Recipients
}

func NewSES(ctx context.Context, cfg config.SES, users Recipients) (*SESNotifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load SES config: %w", err)
	}
	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &SESNotifier{ses: client, from: cfg.From, users: users}, nil
}

func (n *SESNotifier) SubscriptionActivated(ctx context.Context, a subscription.Activation) error {
	u, err := n.users.Get(ctx, a.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}

	subject := fmt.Sprintf("Підписку %s активовано - Stefa.books", a.Plan.Name)
	body := fmt.Sprintf(
		"Вітаємо!\n\nВашу підписку «%s» активовано.\nОдночасно можна брати книг: %d.\nПідписка діє до %s.\n\nГарного читання!\nКоманда Stefa.books",
		a.Plan.Name,
		a.Plan.MaxConcurrentBooks,
		a.EndDate.Format("02.01.2006"),
	)

	_, err = n.ses.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from),
		Destination:      &types.Destination{ToAddresses: []string{u.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body:    &types.Body{Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send activation email: %w", err)
	}
	logger.FromContext(ctx).Info("activation email sent", "subscription_id", a.SubscriptionID, "user_id", a.UserID)
	return nil
}

// Noop is used when SES is not configured.
type Noop struct{}

func (Noop) SubscriptionActivated(ctx context.Context, a subscription.Activation) error {
	logger.FromContext(ctx).Debug("email notifications disabled", "subscription_id", a.SubscriptionID)
	return nil
}

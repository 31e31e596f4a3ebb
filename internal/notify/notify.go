// Package notify は応募に関する通知を送信する。
//
// 応募者へのメールはAmazon SES、管理者へのアラートはAmazon SNSトピックで送る。
// AWSが設定されていない環境ではログ出力のみ行う。
// 通知の失敗は応募処理自体を失敗させない。
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/hitoshi/showcase/internal/model"
)

// Notifier は応募イベントの通知先。
type Notifier interface {
	// ApplicationSubmitted は応募を受け付けたときに呼ばれる。
	ApplicationSubmitted(ctx context.Context, app *model.Application, listingName string) error
	// ApplicationStatusChanged は管理者がステータスを変更したときに呼ばれる。
	ApplicationStatusChanged(ctx context.Context, app *model.Application) error
}

// sesAPI はSESクライアントのうち使用するメソッド。
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// snsAPI はSNSクライアントのうち使用するメソッド。
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config は通知先の設定。
type Config struct {
	AWSRegion     string
	FromAddress   string
	AdminTopicARN string
	SiteName      string
}

// New は設定に応じた Notifier を組み立てる。
// AWSRegion が空なら LogNotifier のみを返す。
func New(ctx context.Context, cfg Config) (Notifier, error) {
	notifiers := []Notifier{LogNotifier{}}
	if cfg.AWSRegion == "" {
		return Multi(notifiers), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.FromAddress != "" {
		notifiers = append(notifiers, NewSESNotifier(ses.NewFromConfig(awsCfg), cfg.FromAddress, cfg.SiteName))
	}
	if cfg.AdminTopicARN != "" {
		notifiers = append(notifiers, NewSNSAlerter(sns.NewFromConfig(awsCfg), cfg.AdminTopicARN))
	}
	return Multi(notifiers), nil
}

// Multi は複数の Notifier に順に通知する。
// 全ての通知先を試し、失敗はまとめて返す。
type Multi []Notifier

func (m Multi) ApplicationSubmitted(ctx context.Context, app *model.Application, listingName string) error {
	var errs []error
	for _, n := range m {
		if err := n.ApplicationSubmitted(ctx, app, listingName); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) ApplicationStatusChanged(ctx context.Context, app *model.Application) error {
	var errs []error
	for _, n := range m {
		if err := n.ApplicationStatusChanged(ctx, app); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier は通知内容を構造化ログに出力する。
type LogNotifier struct{}

func (LogNotifier) ApplicationSubmitted(_ context.Context, app *model.Application, listingName string) error {
	slog.Info("応募を受け付けました",
		slog.String("application_id", app.ID),
		slog.String("listing_kind", string(app.ListingKind)),
		slog.String("listing_id", app.ListingID),
		slog.String("listing_name", listingName),
	)
	return nil
}

func (LogNotifier) ApplicationStatusChanged(_ context.Context, app *model.Application) error {
	slog.Info("応募ステータスを変更しました",
		slog.String("application_id", app.ID),
		slog.String("status", string(app.Status)),
	)
	return nil
}

// SESNotifier は応募者にメールを送る。
type SESNotifier struct {
	client   sesAPI
	from     string
	siteName string
}

// NewSESNotifier はSESNotifierを生成する。
func NewSESNotifier(client sesAPI, from, siteName string) *SESNotifier {
	return &SESNotifier{client: client, from: from, siteName: siteName}
}

func (n *SESNotifier) ApplicationSubmitted(ctx context.Context, app *model.Application, listingName string) error {
	subject := fmt.Sprintf("[%s] We received your application", n.siteName)
	body := fmt.Sprintf("Dear %s,\n\nThank you for applying to %s. Your application (%s) is now pending review.\n",
		app.ApplicantName, listingName, app.ID)
	return n.send(ctx, app.Email, subject, body)
}

func (n *SESNotifier) ApplicationStatusChanged(ctx context.Context, app *model.Application) error {
	subject := fmt.Sprintf("[%s] Your application was %s", n.siteName, app.Status)
	body := fmt.Sprintf("Dear %s,\n\nThe status of your application (%s) is now: %s.\n",
		app.ApplicantName, app.ID, app.Status)
	return n.send(ctx, app.Email, subject, body)
}

func (n *SESNotifier) send(ctx context.Context, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return nil
	}
	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{ToAddresses: []string{to}},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.from),
	})
	if err != nil {
		return fmt.Errorf("send email via SES: %w", err)
	}
	return nil
}

// SNSAlerter は管理者向けトピックに新着応募を通知する。
type SNSAlerter struct {
	client   snsAPI
	topicARN string
}

// NewSNSAlerter はSNSAlerterを生成する。
func NewSNSAlerter(client snsAPI, topicARN string) *SNSAlerter {
	return &SNSAlerter{client: client, topicARN: topicARN}
}

func (a *SNSAlerter) ApplicationSubmitted(ctx context.Context, app *model.Application, listingName string) error {
	msg := fmt.Sprintf("New %s application %s from %s for %q (%s)",
		app.ListingKind, app.ID, app.ApplicantName, listingName, app.ListingID)
	_, err := a.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.topicARN),
		Subject:  aws.String("New application"),
		Message:  aws.String(msg),
	})
	if err != nil {
		return fmt.Errorf("publish to SNS: %w", err)
	}
	return nil
}

// ApplicationStatusChanged は管理者自身の操作なのでアラートしない。
func (a *SNSAlerter) ApplicationStatusChanged(context.Context, *model.Application) error {
	return nil
}

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

type MailSender struct {
	host      string
	port      int
	user      string
	password  string
	fromName  string
	fromEmail string
}

type MailConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	FromName  string
	FromEmail string
}

func NewMailSender(conf MailConfig) *MailSender {
	return &MailSender{
		host:      conf.Host,
		port:      conf.Port,
		user:      conf.User,
		password:  conf.Password,
		fromName:  conf.FromName,
		fromEmail: conf.FromEmail,
	}
}

func (s *MailSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()

	if err := m.From(fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}

	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("set recipient %v: %w", msg.To, err)
	}

	m.Subject(subject(msg))
	m.SetBodyString(mail.TypeTextHTML, body(msg))

	client, err := mail.NewClient(
		s.host,
		mail.WithPort(s.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.user),
		mail.WithPassword(s.password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("init smtp client for %v:%d: %w", s.host, s.port, err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail via %v:%d: %w", s.host, s.port, err)
	}

	return nil
}

func unitDisplay(msg Message) string {
	if msg.UnitName != "" {
		return msg.UnitName
	}

	return msg.UnitID
}

func subject(msg Message) string {
	switch msg.Kind {
	case KindSpotAvailable:
		return fmt.Sprintf("Your dates at %s are now available", unitDisplay(msg))
	case KindBookingConfirmed:
		return fmt.Sprintf("Booking confirmation - %s", unitDisplay(msg))
	default:
		return fmt.Sprintf("Update on your stay at %s", unitDisplay(msg))
	}
}

func body(msg Message) string {
	checkIn := msg.CheckIn.Format(time.DateOnly)
	checkOut := msg.CheckOut.Format(time.DateOnly)

	if msg.Kind == KindSpotAvailable {
		return fmt.Sprintf(`
			<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
				<h1>A spot opened up</h1>
				<p>The dates you were waiting for at %s are now available:</p>
				<div style="background-color: #f5f5f5; padding: 20px; border-radius: 5px;">
					<p><strong>Check-in:</strong> %s</p>
					<p><strong>Check-out:</strong> %s</p>
				</div>
				<p>This offer is held for a limited time. Book now to secure your stay.</p>
			</div>
		`, unitDisplay(msg), checkIn, checkOut)
	}

	return fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
			<h1>Booking Confirmation</h1>
			<p>Your booking has been confirmed. Here are your booking details:</p>
			<div style="background-color: #f5f5f5; padding: 20px; border-radius: 5px;">
				<h2 style="margin-top: 0;">%s</h2>
				<p><strong>Booking ID:</strong> %s</p>
				<p><strong>Check-in:</strong> %s</p>
				<p><strong>Check-out:</strong> %s</p>
				<p><strong>Total Amount:</strong> $%.2f</p>
			</div>
			<p>If you have any questions, please don't hesitate to contact us.</p>
		</div>
	`, unitDisplay(msg), msg.ReservationID, checkIn, checkOut, msg.TotalAmount)
}

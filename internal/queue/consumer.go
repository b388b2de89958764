package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StartNotificationConsumer connects to RabbitMQ, declares the durable
// rsvp.notifications queue, and starts consuming. Each event is rendered
// and delivered: over SMTP when SMTP_ADDR is configured, and always to an
// append-only logs/notifications.log for auditing. The function runs a
// reconnect loop with exponential backoff and keeps running across broker
// outages; failed messages are rejected without requeue so a poison
// message cannot wedge the queue.
func StartNotificationConsumer(log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	url := BrokerURL()

	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("notification consumer dial failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn, log); err != nil {
			log.Warn("notification consume loop ended", "error", err)
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection, log *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("set QoS failed", "error", err)
	}

	if _, err := ch.QueueDeclare(notificationQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(notificationQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleMessage(d.Body, log); err != nil {
			log.Error("handle notification failed", "error", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleMessage(body []byte, log *slog.Logger) error {
	var ev NotificationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	subject, text := renderNotification(ev)

	if addr := os.Getenv("SMTP_ADDR"); addr != "" {
		if err := sendMail(addr, ev.Email, subject, text); err != nil {
			// Audit log below still records the event; mail delivery stays
			// best-effort.
			log.Error("smtp delivery failed", "kind", ev.Kind, "user_id", ev.UserID, "error", err)
		}
	}

	return appendAuditLine(ev, subject)
}

// renderNotification maps an event to a subject line and body text.
func renderNotification(ev NotificationEvent) (subject, text string) {
	switch ev.Kind {
	case KindSpotAvailable:
		subject = "A spot is reserved for you"
		text = fmt.Sprintf("Hi %s,\n\nA spot opened up and is now reserved for you (ref %s). Confirm your RSVP before %s or the spot goes to the next person in line.\n", ev.Name, ev.SpotRef, ev.ExpiresAt)
	case KindJoinedWaitlist:
		subject = "You're on the waitlist"
		text = fmt.Sprintf("Hi %s,\n\nThe event is currently full, so we've added you to the waitlist. We'll email you as soon as a spot opens up.\n", ev.Name)
	case KindRSVPConfirmed:
		subject = "RSVP confirmed"
		text = fmt.Sprintf("Hi %s,\n\nYour RSVP is confirmed. See you at the event!\n", ev.Name)
	default:
		subject = "Event update"
		text = fmt.Sprintf("Hi %s,\n\nThere's an update on your admission status.\n", ev.Name)
	}
	return subject, text
}

// sendMail delivers a plain-text message via the configured SMTP relay.
// SMTP_FROM defaults to a no-reply address; SMTP_USER/SMTP_PASS enable
// plain auth when set.
func sendMail(addr, to, subject, text string) error {
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = "no-reply@hackathon.local"
	}
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, text))

	var auth smtp.Auth
	if user := os.Getenv("SMTP_USER"); user != "" {
		host := addr
		if h, _, err := net.SplitHostPort(addr); err == nil {
			host = h
		}
		auth = smtp.PlainAuth("", user, os.Getenv("SMTP_PASS"), host)
	}
	return smtp.SendMail(addr, auth, from, []string{to}, msg)
}

// appendAuditLine records every processed notification in a single-line,
// human-friendly format under logs/notifications.log.
func appendAuditLine(ev NotificationEvent, subject string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join("logs", "notifications.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s | user_id=%d | email=%s | subject=%q | spot_ref=%s\n",
		ev.OccurredAt, ev.Kind, ev.UserID, ev.Email, subject, ev.SpotRef)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package notify

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/zeytinlab/zeytinvault/internal/config"
)

// EmailNotifier sends run reports over SMTP with STARTTLS and PLAIN auth.
type EmailNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string

	// sendMail is swappable for tests.
	sendMail func(addr string, auth sasl.Client, from string, to []string, msg []byte) error
}

// NewEmailNotifier creates a notifier from the email configuration. The
// recipient list is comma-separated in the configuration.
func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	var to []string
	for _, addr := range strings.Split(cfg.To, ",") {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			to = append(to, trimmed)
		}
	}

	n := &EmailNotifier{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		to:       to,
	}
	n.sendMail = func(addr string, auth sasl.Client, from string, to []string, msg []byte) error {
		return smtp.SendMail(addr, auth, from, to, strings.NewReader(string(msg)))
	}
	return n
}

// Notify implements Notifier.
func (n *EmailNotifier) Notify(report Report) error {
	hostname, _ := os.Hostname()

	msg := n.render(report.Subject(hostname), report.Body())
	addr := net.JoinHostPort(n.host, strconv.Itoa(n.port))

	var auth sasl.Client
	if n.username != "" {
		auth = sasl.NewPlainClient("", n.username, n.password)
	}

	if err := n.sendMail(addr, auth, n.from, n.to, msg); err != nil {
		return fmt.Errorf("sending notification via %s: %w", addr, err)
	}
	return nil
}

func (n *EmailNotifier) render(subject, body string) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", n.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	return []byte(b.String())
}

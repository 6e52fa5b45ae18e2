package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const verificationSubject = "Confirm your Anwesha account"

// SMTPSender manda los codigos de verificacion de Anwesha por SMTP.
// Con useTLS abre la conexion con TLS implicito (puerto 465); si no, usa STARTTLS via smtp.SendMail.
type SMTPSender struct {
	host     string
	port     int
	auth     smtp.Auth
	from     string
	fromName string
	useTLS   bool
}

func NewSMTPSender(host string, port int, username, password, from, fromName string, useTLS bool) (*SMTPSender, error) {
	host = strings.TrimSpace(host)
	from = strings.TrimSpace(from)
	switch {
	case host == "":
		return nil, errors.New("smtp host is required")
	case from == "":
		return nil, errors.New("smtp from is required")
	}
	if port == 0 {
		port = 587
	}

	s := &SMTPSender{host: host, port: port, from: from, fromName: fromName, useTLS: useTLS}
	if username != "" {
		s.auth = smtp.PlainAuth("", username, password, host)
	}
	return s, nil
}

func (s *SMTPSender) SendVerificationCode(ctx context.Context, toEmail string, code string, expiresAt time.Time) error {
	toEmail = strings.TrimSpace(toEmail)
	if toEmail == "" {
		return errors.New("to email is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := buildMessage(s.from, s.fromName, toEmail, verificationSubject, verificationBody(code, expiresAt))
	if !s.useTLS {
		return smtp.SendMail(s.addr(), s.auth, s.from, []string{toEmail}, []byte(msg))
	}
	return s.sendImplicitTLS(toEmail, msg)
}

func (s *SMTPSender) addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

func (s *SMTPSender) sendImplicitTLS(toEmail, msg string) error {
	conn, err := tls.Dial("tcp", s.addr(), &tls.Config{ServerName: s.host})
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.from); err != nil {
		return err
	}
	if err := client.Rcpt(toEmail); err != nil {
		return err
	}

	body, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := body.Write([]byte(msg)); err != nil {
		body.Close()
		return err
	}
	if err := body.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func verificationBody(code string, expiresAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Use %s to confirm the email of your Anwesha account.\n", code)
	fmt.Fprintf(&b, "The code expires at %s UTC.\n", expiresAt.UTC().Format("2006-01-02 15:04"))
	b.WriteString("If you did not register, ignore this message.\n")
	return b.String()
}

// buildMessage arma un mensaje text/plain con cabeceras separadas por CRLF.
func buildMessage(from, fromName, to, subject, body string) string {
	sender := from
	if name := strings.TrimSpace(fromName); name != "" {
		sender = fmt.Sprintf("%s <%s>", name, from)
	}

	var b strings.Builder
	for _, h := range [][2]string{
		{"From", sender},
		{"To", to},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", `text/plain; charset="UTF-8"`},
	} {
		b.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

package mailer

import (
	"fmt"
	"html"
	"strings"

	"ai-supportdesk-be/internal/entity"

	"gopkg.in/gomail.v2"
)

type IEmailService interface {
	SendTicketNotification(ticket *entity.Ticket, requesterEmail string) error
}

type emailService struct {
	dialer       *gomail.Dialer
	senderEmail  string
	supportInbox string
}

func NewEmailService(host string, port int, username, password, senderEmail, supportInbox string) IEmailService {
	d := gomail.NewDialer(host, port, username, password)
	return &emailService{
		dialer:       d,
		senderEmail:  senderEmail,
		supportInbox: supportInbox,
	}
}

// SendTicketNotification delivers a submitted ticket to the support inbox so
// a human can pick it up.
func (s *emailService) SendTicketNotification(ticket *entity.Ticket, requesterEmail string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.senderEmail)
	m.SetHeader("To", s.supportInbox)
	m.SetHeader("Subject", fmt.Sprintf("[%s] %s", ticket.Category, ticket.Title))

	desc := strings.ReplaceAll(html.EscapeString(ticket.Description), "\n", "<br>")
	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>New Support Ticket</h2>
			<p><b>Ticket ID:</b> %s</p>
			<p><b>Category:</b> %s</p>
			<p><b>Requester:</b> %s</p>
			<h3>%s</h3>
			<p>%s</p>
		</div>
	`, ticket.Id, html.EscapeString(ticket.Category), html.EscapeString(requesterEmail), html.EscapeString(ticket.Title), desc)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		fmt.Printf("[MAILER ERROR] Failed to send ticket %s to support inbox: %v\n", ticket.Id, err)
		return err
	}

	fmt.Printf("[MAILER] Ticket %s sent to %s\n", ticket.Id, s.supportInbox)
	return nil
}

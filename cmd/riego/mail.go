package main

import (
	"context"
	"log"
	"time"

	mailgun "github.com/mailgun/mailgun-go/v3"
)

// alerter tells a human something went wrong.
type alerter interface {
	Alert(subj, msg string)
}

// logAlerter is used when no mail is configured.
type logAlerter struct{}

func (logAlerter) Alert(subj, msg string) {
	log.Printf("[Alert] %s: %s", subj, msg)
}

type mailAlerter struct {
	mc MailgunConfig
}

func newAlerter(mc MailgunConfig) alerter {
	if mc.APIKey == "" || mc.Domain == "" || len(mc.Recipients) == 0 {
		return logAlerter{}
	}
	return mailAlerter{mc: mc}
}

func (m mailAlerter) Alert(subj, msg string) {
	logAlerter{}.Alert(subj, msg)
	sendMail(m.mc, subj, msg)
}

func sendMail(mc MailgunConfig, subj, msg string) {
	// Create an instance of the Mailgun Client
	mg := mailgun.NewMailgun(mc.Domain, mc.APIKey)
	message := mg.NewMessage(mc.Sender, subj, msg, mc.Recipients...)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	// Send the message with a 10 second timeout
	resp, id, err := mg.Send(ctx, message)
	if err != nil {
		log.Printf("[Error] Failed to send alert: %s", err)
		return
	}
	if id == "" {
		log.Printf("[Error] Failed to send alert, invalid ID: %s", resp)
	}
}

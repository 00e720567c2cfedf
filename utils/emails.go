package utils

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"net/smtp"
	"os"
)

// SendEmail delivers one message over SMTP with implicit TLS. Server and
// credentials come from the environment; an unconfigured server is an error
// so callers can record the channel as not sent.
func SendEmail(recipientEmail, subject, body string) error {
	smtpServer := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	senderEmail := os.Getenv("SENDER_EMAIL")
	senderPassword := os.Getenv("SENDER_PASSWORD")

	if smtpServer == "" || senderEmail == "" {
		return errors.New("email channel not configured")
	}
	if smtpPort == "" {
		smtpPort = "465"
	}

	from := mail.Address{Name: "Proposta360", Address: senderEmail}

	// Create TLS config
	tlsConfig := &tls.Config{
		ServerName: smtpServer,
	}

	// Connect to the SMTP Server
	conn, err := tls.Dial("tcp", smtpServer+":"+smtpPort, tlsConfig)
	if err != nil {
		log.Printf("Failed to connect to SMTP server: %v", err)
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, smtpServer)
	if err != nil {
		log.Printf("Failed to create SMTP client: %v", err)
		return err
	}
	defer client.Quit()

	// Authenticate
	auth := smtp.PlainAuth("", senderEmail, senderPassword, smtpServer)
	if err = client.Auth(auth); err != nil {
		log.Printf("SMTP authentication failed: %v", err)
		return err
	}

	// Set the sender and recipient
	if err = client.Mail(from.Address); err != nil {
		log.Printf("Failed to set sender: %v", err)
		return err
	}
	if err = client.Rcpt(recipientEmail); err != nil {
		log.Printf("Failed to set recipient: %v", err)
		return err
	}

	// Send the email body
	writer, err := client.Data()
	if err != nil {
		log.Printf("Failed to open data writer: %v", err)
		return err
	}
	defer writer.Close()

	header := make(map[string]string)
	header["From"] = from.String()
	header["To"] = recipientEmail
	header["Subject"] = subject

	message := ""
	for k, v := range header {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + body

	_, err = writer.Write([]byte(message))
	if err != nil {
		log.Printf("Failed to write email body: %v", err)
		return err
	}

	return nil
}

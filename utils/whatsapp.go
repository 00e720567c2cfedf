package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

var whatsappClient = &http.Client{Timeout: 10 * time.Second}

// SendWhatsAppMessage posts one text message to the WhatsApp Business API.
// Returns an error when the API is not configured or rejects the request so
// callers can record the channel outcome.
func SendWhatsAppMessage(phoneNumber, message string) error {
	apiURL := os.Getenv("WHATSAPP_API_URL")
	token := os.Getenv("WHATSAPP_TOKEN")

	if apiURL == "" || token == "" {
		return errors.New("whatsapp channel not configured")
	}
	if phoneNumber == "" {
		return errors.New("recipient phone number is empty")
	}

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                phoneNumber,
		"type":              "text",
		"text": map[string]string{
			"body": message,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, apiURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := whatsappClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whatsapp api returned status %d", resp.StatusCode)
	}

	return nil
}
